package lobby

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
	"github.com/KimigaiiWuyi/MajsoulUID/library/work"
)

// NotifyHandler 收到服务器通知时的回调 msg已按schema解码
type NotifyHandler func(name string, msg *protocol.Message)

type callResult struct {
	msg *protocol.Message
	err error
}

type pendingCall struct {
	method string
	res    *protocol.Descriptor // 发起时捕获 响应帧不带方法名
	done   chan callResult
}

/*
	rpcMux 把双向帧流复用成 请求/响应+通知 两类流量
	index为16位回绕计数 分配时跳过仍在途的值避免串号
*/

type rpcMux struct {
	registry *protocol.Registry
	send     func(data []byte) error
	loop     work.ITaskLoop
	onNotify NotifyHandler

	mu      sync.Mutex
	next    uint16
	pending map[uint16]*pendingCall
	closed  bool

	unknownResponses atomic.Uint64
}

func newRPCMux(registry *protocol.Registry, send func([]byte) error, loop work.ITaskLoop, onNotify NotifyHandler) *rpcMux {
	return &rpcMux{
		registry: registry,
		send:     send,
		loop:     loop,
		onNotify: onNotify,
		next:     1, // index 0不用 首个请求从1起
		pending:  make(map[uint16]*pendingCall),
	}
}

// Call 发起一次RPC并等待响应
// 方法名未注册/参数不合schema时在发送前失败 不占用index
func (m *rpcMux) Call(ctx context.Context, method string, params map[string]any) (*protocol.Message, error) {
	reqDesc, resDesc, err := m.registry.Method(method)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	payload, err := reqDesc.Marshal(params)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{method: method, res: resDesc, done: make(chan callResult, 1)}
	index, err := m.register(call)
	if err != nil {
		return nil, err
	}

	frame, err := protocol.EncodeFrame(protocol.KindRequest, index, method, payload)
	if err != nil {
		m.unregister(index)
		return nil, err
	}
	if err := m.send(frame); err != nil {
		m.unregister(index)
		return nil, fmt.Errorf("lobby: send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		m.unregister(index)
		return nil, ctx.Err()
	case r := <-call.done:
		return r.msg, r.err
	}
}

// register 分配index并登记在途调用
func (m *rpcMux) register(call *pendingCall) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrConnectionClosed
	}
	if len(m.pending) >= 1<<16 {
		return 0, fmt.Errorf("lobby: all request indexes in flight")
	}

	for {
		index := m.next
		m.next++
		if _, busy := m.pending[index]; !busy {
			m.pending[index] = call
			return index, nil
		}
	}
}

func (m *rpcMux) unregister(index uint16) {
	m.mu.Lock()
	delete(m.pending, index)
	m.mu.Unlock()
}

// Dispatch 处理一条入站帧 链路错误时返回非nil
func (m *rpcMux) Dispatch(f *protocol.Frame) error {
	switch f.Kind {
	case protocol.KindResponse:
		m.dispatchResponse(f)
		return nil
	case protocol.KindNotify:
		m.dispatchNotify(f)
		return nil
	case protocol.KindRequest:
		// 本协议不存在服务器主动Request 记录后丢弃
		log.Warnf("[mux] unexpected server request %q idx=%d, ignored", f.Name, f.Index)
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrMalformedFrame, f.Kind)
	}
}

func (m *rpcMux) dispatchResponse(f *protocol.Frame) {
	m.mu.Lock()
	call, ok := m.pending[f.Index]
	if ok {
		delete(m.pending, f.Index)
	}
	m.mu.Unlock()

	if !ok {
		// 多为超时后迟到的响应 不致命 计数观察
		n := m.unknownResponses.Add(1)
		log.Warnf("[mux] response with unknown index %d (total %d), dropped", f.Index, n)
		return
	}

	msg, err := call.res.Unmarshal(f.Data)
	if err != nil {
		call.done <- callResult{err: fmt.Errorf("lobby: decode %s response: %w", call.method, err)}
		return
	}
	if e := msg.Msg("error"); e.Int("code") != 0 {
		call.done <- callResult{err: &RPCError{Method: call.method, Code: e.Int("code")}}
		return
	}
	call.done <- callResult{msg: msg}
}

func (m *rpcMux) dispatchNotify(f *protocol.Frame) {
	desc, err := m.registry.Notify(f.Name)
	if err != nil {
		log.Warnf("[mux] %v, dropped", err)
		return
	}
	msg, err := desc.Unmarshal(f.Data)
	if err != nil {
		log.Errorf("[mux] decode notify %s: %v", f.Name, err)
		return
	}

	// 通知处理交给任务池 不阻塞读循环
	name := f.Name
	m.loop.Post(func() { m.onNotify(name, msg) })
}

// UnknownResponseCount 迟到/串号响应累计
func (m *rpcMux) UnknownResponseCount() uint64 {
	return m.unknownResponses.Load()
}

// Close 关闭复用器 所有在途调用立即以cause失败
func (m *rpcMux) Close(cause error) {
	if cause == nil {
		cause = ErrConnectionClosed
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.pending
	m.pending = make(map[uint16]*pendingCall)
	m.mu.Unlock()

	for _, call := range pending {
		call.done <- callResult{err: cause}
	}
}
