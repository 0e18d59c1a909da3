// Package protocol implements the lobby wire protocol: the three-kind binary
// frame envelope, the liqi protocol-definition registry and a schema-driven
// payload codec. Payload schemas are loaded from the platform's versioned
// liqi.json document at startup, so a protocol drift surfaces as a typed
// error instead of a codegen mismatch.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// 帧类型
const (
	KindNotify   = byte(1)
	KindRequest  = byte(2)
	KindResponse = byte(3)
)

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrUnknownMethod  = errors.New("protocol: unknown method")
	ErrUnknownNotify  = errors.New("protocol: unknown notification")
)

// Frame 一条完整的链路消息 Data为未按schema解析的payload
type Frame struct {
	Kind  byte
	Index uint16 // Request/Response才有 线路上小端16位
	Name  string // 点分方法/通知路径 Response帧线路上为空
	Data  []byte
}

// EncodeFrame 组帧
//
//	Notify:           [kind][wrapper...]
//	Request/Response: [kind][idx lo][idx hi][wrapper...]
func EncodeFrame(kind byte, index uint16, name string, data []byte) ([]byte, error) {
	switch kind {
	case KindNotify:
		return append([]byte{kind}, wrapEnvelope(name, data)...), nil
	case KindRequest, KindResponse:
		buf := []byte{kind, byte(index), byte(index >> 8)}
		return append(buf, wrapEnvelope(name, data)...), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrMalformedFrame, kind)
	}
}

// DecodeFrame 拆帧 只解析外层信封 payload的schema由上层决定
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedFrame)
	}

	f := &Frame{Kind: buf[0]}
	body := buf[1:]

	switch f.Kind {
	case KindNotify:
	case KindRequest, KindResponse:
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: truncated index", ErrMalformedFrame)
		}
		f.Index = uint16(body[0]) | uint16(body[1])<<8
		body = body[2:]
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrMalformedFrame, f.Kind)
	}

	name, data, err := unwrapEnvelope(body)
	if err != nil {
		return nil, err
	}
	f.Name = name
	f.Data = data
	return f, nil
}

// DecodeEnvelope 解开不带帧头的裸信封 牌谱详情数据用这种形式层层嵌套
func DecodeEnvelope(b []byte) (name string, data []byte, err error) {
	return unwrapEnvelope(b)
}

// EncodeEnvelope DecodeEnvelope的逆操作
func EncodeEnvelope(name string, data []byte) []byte {
	return wrapEnvelope(name, data)
}

// wrapEnvelope 内层信封 Wrapper{1:name 2:data}
func wrapEnvelope(name string, data []byte) []byte {
	var buf []byte
	if name != "" {
		buf = protowire.AppendTag(buf, 1, protowire.BytesType)
		buf = protowire.AppendString(buf, name)
	}
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendBytes(buf, data)
	return buf
}

func unwrapEnvelope(b []byte) (name string, data []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: bad envelope tag", ErrMalformedFrame)
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: bad envelope field", ErrMalformedFrame)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: bad envelope value", ErrMalformedFrame)
		}
		b = b[n:]

		switch num {
		case 1:
			name = string(v)
		case 2:
			// 空payload归一成nil 编码侧nil和空切片线上不可区分
			if len(v) > 0 {
				data = v
			}
		}
	}
	return name, data, nil
}
