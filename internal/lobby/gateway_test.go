package lobby

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
)

// gatewayHandler 假网关的单方法处理器 返回响应字段表
type gatewayHandler func(params *protocol.Message) map[string]any

// fakeGateway 会说帧协议的假网关
type fakeGateway struct {
	t   *testing.T
	reg *protocol.Registry
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]gatewayHandler
	calls    map[string]int
	conns    []*gwConn
}

type gwConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *gwConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:        t,
		reg:      newTestRegistry(t),
		handlers: make(map[string]gatewayHandler),
		calls:    make(map[string]int),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) endpoint() Endpoint {
	return Endpoint{
		GatewayURL:          "ws" + strings.TrimPrefix(g.srv.URL, "http"),
		Version:             "0.10.113.w",
		ClientVersionString: "web-0.10.113",
	}
}

func (g *fakeGateway) handle(method string, h gatewayHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[method] = h
}

func (g *fakeGateway) callCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// notifyAll 向所有已连接客户端推一条通知
func (g *fakeGateway) notifyAll(name string, values map[string]any) {
	desc, err := g.reg.Notify(name)
	require.NoError(g.t, err)
	payload, err := desc.Marshal(values)
	require.NoError(g.t, err)
	frame, err := protocol.EncodeFrame(protocol.KindNotify, 0, name, payload)
	require.NoError(g.t, err)

	g.mu.Lock()
	conns := append([]*gwConn(nil), g.conns...)
	g.mu.Unlock()
	for _, conn := range conns {
		_ = conn.write(frame)
	}
}

var gwUpgrader = websocket.Upgrader{}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := gwUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &gwConn{ws: ws}
	g.mu.Lock()
	g.conns = append(g.conns, conn)
	g.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil || frame.Kind != protocol.KindRequest {
			continue
		}

		g.mu.Lock()
		g.calls[frame.Name]++
		h := g.handlers[frame.Name]
		g.mu.Unlock()
		if h == nil {
			// 未打桩的方法回RPC错误码
			h = func(*protocol.Message) map[string]any {
				return map[string]any{"error": map[string]any{"code": int64(9999)}}
			}
		}

		req, res, err := g.reg.Method(frame.Name)
		if err != nil {
			g.t.Errorf("gateway: %v", err)
			continue
		}
		params, err := req.Unmarshal(frame.Data)
		if err != nil {
			g.t.Errorf("gateway: decode %s: %v", frame.Name, err)
			continue
		}

		payload, err := res.Marshal(h(params))
		if err != nil {
			g.t.Errorf("gateway: encode %s response: %v", frame.Name, err)
			continue
		}
		out, err := protocol.EncodeFrame(protocol.KindResponse, frame.Index, "", payload)
		if err != nil {
			g.t.Errorf("gateway: frame %s response: %v", frame.Name, err)
			continue
		}
		_ = conn.write(out)
	}
}

// stubLoginFlow 打桩一整套登录链路
func (g *fakeGateway) stubLoginFlow(accountID int64, nickname, accessToken string) {
	ok := map[string]any{}
	g.handle(".lq.Lobby.fetchServerTime", func(*protocol.Message) map[string]any {
		return map[string]any{"server_time": int64(1700000000)}
	})
	g.handle(".lq.Lobby.heatbeat", func(*protocol.Message) map[string]any { return ok })
	g.handle(".lq.Lobby.loginBeat", func(*protocol.Message) map[string]any { return ok })
	g.handle(".lq.Lobby.fetchInfo", func(*protocol.Message) map[string]any {
		return map[string]any{"friend_list": map[string]any{}, "friend_apply_list": map[string]any{}}
	})
	g.handle(".lq.Lobby.login", func(*protocol.Message) map[string]any {
		return map[string]any{
			"account_id":   accountID,
			"account":      map[string]any{"account_id": accountID, "nickname": nickname},
			"access_token": accessToken,
		}
	})
	g.handle(".lq.Lobby.oauth2Check", func(*protocol.Message) map[string]any {
		return map[string]any{"has_account": true}
	})
	g.handle(".lq.Lobby.oauth2Login", func(*protocol.Message) map[string]any {
		return map[string]any{
			"account_id":   accountID,
			"account":      map[string]any{"account_id": accountID, "nickname": nickname},
			"access_token": accessToken,
		}
	})
}
