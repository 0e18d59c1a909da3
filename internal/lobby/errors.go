package lobby

import (
	"errors"
	"fmt"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
)

// 错误分级
//
//	单次调用错误(UnknownMethod/应用层error码) 只让该调用失败
//	链路错误(MalformedFrame/socket断开) 整条连接报废 交由Manager决定重启
var (
	ErrConnectionClosed = errors.New("lobby: connection closed")
	ErrDiscovery        = errors.New("lobby: discovery failed")
	ErrAuthentication   = errors.New("lobby: authentication failed")

	// 帧/协议错误沿用protocol包定义 方便errors.Is跨层匹配
	ErrMalformedFrame = protocol.ErrMalformedFrame
	ErrUnknownMethod  = protocol.ErrUnknownMethod
	ErrUnknownNotify  = protocol.ErrUnknownNotify
)

// MaintenanceError 服务器维护中 可稍后重试 与凭据错误严格区分
type MaintenanceError struct {
	Message string
}

func (e *MaintenanceError) Error() string {
	return fmt.Sprintf("lobby: server under maintenance: %s", e.Message)
}

// RPCError 响应携带的应用层错误码
type RPCError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("lobby: %s failed: code=%d %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("lobby: %s failed: code=%d", e.Method, e.Code)
}
