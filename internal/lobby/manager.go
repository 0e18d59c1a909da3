package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/store"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
	"github.com/KimigaiiWuyi/MajsoulUID/library/work"
)

const (
	defaultCheckInterval = 2 * time.Minute
	connIDLength         = 8
)

// Discoverer 接入点发现 生产实现为*Discovery
type Discoverer interface {
	Discover(ctx context.Context) (*Endpoint, []byte, error)
}

// ManagerOption 管理器配置函数
type ManagerOption func(*Manager)

// WithConnOptions 透传给每条连接的配置
func WithConnOptions(opts ...ConnOption) ManagerOption {
	return func(m *Manager) { m.connOpts = opts }
}

// WithCheckInterval 存活巡检周期
func WithCheckInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithPassport Yostar换码客户端
func WithPassport(p *PassportClient) ManagerOption {
	return func(m *Manager) { m.passport = p }
}

// Manager 账号池连接管理器
// 启动/重启/巡检都串行化 任何时刻每个账号至多一条活动连接
type Manager struct {
	disc     Discoverer
	accounts store.AccountRepo
	passport *PassportClient

	connOpts      []ConnOption
	checkInterval time.Duration

	loop  work.ITaskLoop
	sched work.Scheduler

	mu        sync.Mutex
	registry  *protocol.Registry
	endpoint  Endpoint
	conns     map[string]*Connection // 键为账号UID
	creds     map[string]store.Account
	sweepTask int64
	started   bool
}

func NewManager(disc Discoverer, accounts store.AccountRepo, opts ...ManagerOption) *Manager {
	m := &Manager{
		disc:          disc,
		accounts:      accounts,
		passport:      NewPassportClient(),
		checkInterval: defaultCheckInterval,
		loop:          work.NewAntsLoop(0),
		conns:         make(map[string]*Connection),
		creds:         make(map[string]store.Account),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 发现接入点并拉起池内全部账号
// 单个账号的失败累积返回不拖累其他账号 只有维护中才整体中止
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("lobby: manager already started")
	}
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	if err := m.loop.Start(); err != nil {
		return err
	}
	m.sched = work.NewScheduler(m.loop)

	ep, liqi, err := m.disc.Discover(ctx)
	if err != nil {
		m.releaseLocked()
		return err
	}
	doc, err := protocol.ParseDocument(liqi)
	if err != nil {
		m.releaseLocked()
		return err
	}
	m.endpoint = *ep
	m.registry = protocol.NewRegistry(doc)

	accounts, err := m.accounts.ListPooledAccounts(ctx)
	if err != nil {
		m.releaseLocked()
		return err
	}
	if len(accounts) == 0 {
		m.releaseLocked()
		return fmt.Errorf("lobby: no pooled accounts")
	}

	m.creds = make(map[string]store.Account, len(accounts))
	var failures []error
	for _, acct := range accounts {
		m.creds[acct.UID] = acct
		if err := m.connectLocked(ctx, acct); err != nil {
			var maint *MaintenanceError
			if errors.As(err, &maint) {
				// 维护中属环境性问题 继续拉别的账号没有意义
				m.closeAllLocked()
				m.releaseLocked()
				return fmt.Errorf("lobby: account %s: %w", acct.UID, err)
			}
			failures = append(failures, fmt.Errorf("account %s: %w", acct.UID, err))
		}
	}

	m.sweepTask = m.sched.Forever(m.checkInterval, m.sweep)
	m.started = true
	log.Infof("[manager] started connections=%d failures=%d", len(m.conns), len(failures))
	return errors.Join(failures...)
}

// connectLocked 为单个账号建链+登录 登录后的新token回写库
func (m *Manager) connectLocked(ctx context.Context, acct store.Account) error {
	id, err := gonanoid.New(connIDLength)
	if err != nil {
		return err
	}

	opts := append([]ConnOption{
		WithTaskLoop(m.loop),
		WithScheduler(m.sched),
	}, m.connOpts...)

	conn, err := Dial(ctx, id, m.endpoint, m.registry, opts...)
	if err != nil {
		return err
	}

	result, err := m.login(ctx, conn, acct)
	if err != nil {
		conn.Close()
		return err
	}

	if result.AccessToken != "" && result.AccessToken != acct.AccessToken {
		if err := m.accounts.UpdateAccessToken(ctx, acct.UID, result.AccessToken); err != nil {
			log.Errorf("[manager] persist token for %s: %v", acct.UID, err)
		} else {
			acct.AccessToken = result.AccessToken
			m.creds[acct.UID] = acct
		}
	}

	m.conns[acct.UID] = conn
	return nil
}

// login 令牌优先 失效再走账密/渠道全量登录
func (m *Manager) login(ctx context.Context, conn *Connection, acct store.Account) (*LoginResult, error) {
	if acct.LoginType == store.LoginTypeYostar {
		code, err := m.passport.Exchange(ctx, acct.UID, acct.Token, acct.Lang)
		if err != nil {
			return nil, err
		}
		return conn.LoginYostar(ctx, acct.UID, code)
	}

	if acct.AccessToken != "" {
		result, err := conn.LoginToken(ctx, acct.AccessToken)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrAuthentication) {
			return nil, err
		}
		log.Warnf("[manager] token login failed for %s, falling back to password: %v", acct.UID, err)
	}
	return conn.LoginPassword(ctx, acct.Username, acct.Password)
}

// RestartAll 兜底恢复动作 关掉全部连接后重走一遍启动流程
func (m *Manager) RestartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("lobby: manager not started")
	}
	log.Warnf("[manager] restarting all connections")
	m.stopLocked()
	return m.startLocked(ctx)
}

// Restart 重建某个账号的连接 旧连接先关
func (m *Manager) Restart(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("lobby: manager not started")
	}
	acct, ok := m.creds[uid]
	if !ok {
		return fmt.Errorf("lobby: unknown account %s", uid)
	}
	if old, ok := m.conns[uid]; ok {
		old.Close()
		delete(m.conns, uid)
	}
	return m.connectLocked(ctx, acct)
}

// sweep 巡检 掉线或探活失败的连接原地重建
// 启动时没拉起来的账号也在这里续命
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for uid, acct := range m.creds {
		if conn, ok := m.conns[uid]; ok {
			if conn.State() == StateReady && conn.CheckAlive(ctx) {
				continue
			}
			log.Warnf("[manager] connection for %s unhealthy (state=%s), restarting", uid, conn.State())
			conn.Close()
			delete(m.conns, uid)
		} else {
			log.Warnf("[manager] no connection for %s, connecting", uid)
		}
		if err := m.connectLocked(ctx, acct); err != nil {
			log.Errorf("[manager] restart %s: %v", uid, err)
		}
	}
}

// Connection 按账号UID取连接
func (m *Manager) Connection(uid string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[uid]
	return conn, ok
}

// Connections 当前活动连接快照
func (m *Manager) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn)
	}
	return out
}

// Stop 关闭全部连接并释放池资源 幂等
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.stopLocked()
	log.Infof("[manager] stopped")
}

func (m *Manager) stopLocked() {
	m.started = false
	if m.sweepTask != 0 {
		m.sched.Cancel(m.sweepTask)
		m.sweepTask = 0
	}
	m.closeAllLocked()
	m.releaseLocked()
}

func (m *Manager) closeAllLocked() {
	for uid, conn := range m.conns {
		conn.Close()
		delete(m.conns, uid)
	}
}

func (m *Manager) releaseLocked() {
	if m.sched != nil {
		m.sched.Stop()
		m.sched = nil
	}
	m.loop.Stop()
}
