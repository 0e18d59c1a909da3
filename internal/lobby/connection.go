// Package lobby implements the gateway link: frame multiplexing over a
// websocket, the login handshake, the heartbeat keepalive and the friend
// session state driven by server notifications.
package lobby

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/friends"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/push"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/store"
	"github.com/KimigaiiWuyi/MajsoulUID/library/ext"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
	"github.com/KimigaiiWuyi/MajsoulUID/library/work"
	"github.com/KimigaiiWuyi/MajsoulUID/library/xgo"
)

// State 连接生命周期状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateDegraded // 链路还在但心跳/取谱等出现持续失败
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	defaultHeartbeatMin = 300 * time.Second
	defaultHeartbeatMax = 360 * time.Second

	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	callTimeout      = 15 * time.Second
)

type connConfig struct {
	heartbeatMin time.Duration
	heartbeatMax time.Duration
	loop         work.ITaskLoop
	sched        work.Scheduler
	router       *push.Router
	logs         store.GameLogRepo
	archive      store.RecordArchive
	autoAccept   bool
}

// ConnOption 连接配置函数
type ConnOption func(*connConfig)

// WithHeartbeatRange 心跳间隔区间 每拍在区间内随机取值
func WithHeartbeatRange(min, max time.Duration) ConnOption {
	return func(c *connConfig) {
		if min > 0 && max >= min {
			c.heartbeatMin, c.heartbeatMax = min, max
		}
	}
}

// WithTaskLoop 共享任务池 不传则连接自建
func WithTaskLoop(loop work.ITaskLoop) ConnOption {
	return func(c *connConfig) { c.loop = loop }
}

// WithScheduler 共享调度器 不传则连接自建
func WithScheduler(sched work.Scheduler) ConnOption {
	return func(c *connConfig) { c.sched = sched }
}

// WithPushRouter 事件推送出口
func WithPushRouter(r *push.Router) ConnOption {
	return func(c *connConfig) { c.router = r }
}

// WithGameLogRepo 对局索引存储
func WithGameLogRepo(repo store.GameLogRepo) ConnOption {
	return func(c *connConfig) { c.logs = repo }
}

// WithRecordArchive 牌谱档案
func WithRecordArchive(a store.RecordArchive) ConnOption {
	return func(c *connConfig) { c.archive = a }
}

// WithAutoAcceptApplies 收到好友申请自动通过
func WithAutoAcceptApplies(enabled bool) ConnOption {
	return func(c *connConfig) { c.autoAccept = enabled }
}

// Connection 一条到网关的活动连接 绑定一个已登录账号
type Connection struct {
	id       string
	conf     connConfig
	endpoint Endpoint
	registry *protocol.Registry

	ws  *websocket.Conn
	mux *rpcMux

	ownLoop  bool
	ownSched bool

	writeMu sync.Mutex
	state   atomic.Int32
	closed  atomic.Bool
	done    chan struct{}

	accountID atomic.Int64
	roster    *friends.Roster

	heartbeatTask atomic.Int64
}

// Dial 建立websocket链路并启动读循环 登录由调用方随后发起
func Dial(ctx context.Context, id string, ep Endpoint, registry *protocol.Registry, opts ...ConnOption) (*Connection, error) {
	conf := connConfig{
		heartbeatMin: defaultHeartbeatMin,
		heartbeatMax: defaultHeartbeatMax,
	}
	for _, opt := range opts {
		opt(&conf)
	}

	c := &Connection{
		id:       id,
		conf:     conf,
		endpoint: ep,
		registry: registry,
		roster:   friends.NewRoster(),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	if c.conf.loop == nil {
		c.conf.loop = work.NewAntsLoop(0)
		c.ownLoop = true
	}
	if err := c.conf.loop.Start(); err != nil {
		return nil, fmt.Errorf("lobby: start task loop: %w", err)
	}
	if c.conf.sched == nil {
		c.conf.sched = work.NewScheduler(c.conf.loop)
		c.ownSched = true
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, ep.GatewayURL, nil)
	if err != nil {
		c.releaseOwned()
		return nil, fmt.Errorf("lobby: dial %s: %w", ep.GatewayURL, err)
	}
	c.ws = ws
	c.mux = newRPCMux(registry, c.send, c.conf.loop, c.handleNotify)

	c.state.Store(int32(StateAuthenticating))
	xgo.Go(c.readPump)

	log.Infof("[conn:%s] connected to %s", c.id, ep.GatewayURL)
	return c, nil
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) AccountID() int64 { return c.accountID.Load() }
func (c *Connection) State() State     { return State(c.state.Load()) }

// Roster 好友名单投影
func (c *Connection) Roster() *friends.Roster { return c.roster }

// Done 连接彻底关闭时关闭
func (c *Connection) Done() <-chan struct{} { return c.done }

// Call 发起一次RPC 未显式给deadline时使用默认超时
func (c *Connection) Call(ctx context.Context, method string, params map[string]any) (*protocol.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}
	return c.mux.Call(ctx, method, params)
}

func (c *Connection) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// readPump 唯一的读者 帧解码失败视为链路损坏
func (c *Connection) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.teardown(fmt.Errorf("lobby: read: %w", err))
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			c.teardown(err)
			return
		}
		if err := c.mux.Dispatch(frame); err != nil {
			c.teardown(err)
			return
		}
	}
}

// markReady 登录握手完成后进入Ready并开始心跳
func (c *Connection) markReady(accountID int64) {
	c.accountID.Store(accountID)
	c.state.Store(int32(StateReady))
	c.scheduleHeartbeat()
	log.Infof("[conn:%s] ready account=%d friends=%d", c.id, accountID, c.roster.Len())
}

// markDegraded 可恢复故障 链路保留 由管理器决定重启
func (c *Connection) markDegraded(reason string) {
	if c.state.CompareAndSwap(int32(StateReady), int32(StateDegraded)) {
		log.Warnf("[conn:%s] degraded: %s", c.id, reason)
	}
}

func (c *Connection) scheduleHeartbeat() {
	delay := ext.RandDuration(c.conf.heartbeatMin, c.conf.heartbeatMax)
	id := c.conf.sched.Once(delay, c.heartbeat)
	c.heartbeatTask.Store(id)
}

// heartbeat 每拍两连发 失败转Degraded 等巡检重建
func (c *Connection) heartbeat() {
	if c.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if _, err := c.mux.Call(ctx, ".lq.Lobby.fetchServerTime", nil); err != nil {
		c.markDegraded(fmt.Sprintf("heartbeat: %v", err))
		return
	}
	if _, err := c.mux.Call(ctx, ".lq.Lobby.heatbeat", map[string]any{"no_operation_counter": 0}); err != nil {
		c.markDegraded(fmt.Sprintf("heartbeat: %v", err))
		return
	}
	c.scheduleHeartbeat()
}

// CheckAlive 主动探活 Ready态下探一次server time
func (c *Connection) CheckAlive(ctx context.Context) bool {
	if c.State() != StateReady {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.mux.Call(ctx, ".lq.Lobby.fetchServerTime", nil)
	return err == nil
}

// teardown 链路级故障收尾 在途调用全部失败
func (c *Connection) teardown(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if State(c.state.Load()) != StateClosing {
		log.Errorf("[conn:%s] link down: %v", c.id, cause)
	}
	c.shutdown(cause)
}

// Close 主动关闭 幂等
func (c *Connection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.state.Store(int32(StateClosing))
	log.Infof("[conn:%s] closing", c.id)
	c.shutdown(ErrConnectionClosed)
}

func (c *Connection) shutdown(cause error) {
	if id := c.heartbeatTask.Load(); id != 0 {
		c.conf.sched.Cancel(id)
	}
	c.mux.Close(cause)
	_ = c.ws.Close()
	c.state.Store(int32(StateClosed))
	c.releaseOwned()
	close(c.done)
}

func (c *Connection) releaseOwned() {
	if c.ownSched && c.conf.sched != nil {
		c.conf.sched.Stop()
	}
	if c.ownLoop && c.conf.loop != nil {
		c.conf.loop.Stop()
	}
}
