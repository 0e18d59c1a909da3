package protocol

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

/*
	schema驱动的动态payload编解码
	描述符来自运行期加载的协议定义 不依赖生成代码
*/

type fieldKind int

const (
	kindVarint fieldKind = iota // int32/int64/uint32/uint64/bool/enum
	kindZigzag                  // sint32/sint64
	kindFixed32
	kindFixed64
	kindFloat
	kindDouble
	kindString
	kindBytes
	kindMessage
)

var scalarKinds = map[string]fieldKind{
	"int32":    kindVarint,
	"int64":    kindVarint,
	"uint32":   kindVarint,
	"uint64":   kindVarint,
	"bool":     kindVarint,
	"sint32":   kindZigzag,
	"sint64":   kindZigzag,
	"fixed32":  kindFixed32,
	"sfixed32": kindFixed32,
	"fixed64":  kindFixed64,
	"sfixed64": kindFixed64,
	"float":    kindFloat,
	"double":   kindDouble,
	"string":   kindString,
	"bytes":    kindBytes,
}

func (d *Descriptor) kindOf(f *Field) fieldKind {
	if k, ok := scalarKinds[f.Type]; ok {
		return k
	}
	if d.registry.isEnum(d.namespace, f.Type) {
		return kindVarint
	}
	return kindMessage
}

func (d *Descriptor) fieldDescriptor(f *Field) (*Descriptor, error) {
	return d.registry.Message(d.namespace, f.Type)
}

// Message 按schema解码后的payload 字段缺失时按proto3零值语义取值
type Message struct {
	desc   *Descriptor
	values map[string]any
}

// Descriptor 返回消息描述符
func (m *Message) Descriptor() *Descriptor { return m.desc }

// Unmarshal 按描述符解码payload
func (d *Descriptor) Unmarshal(data []byte) (*Message, error) {
	m := &Message{desc: d, values: make(map[string]any)}

	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag in %s", ErrMalformedFrame, d.Name)
		}
		b = b[n:]

		ref, known := d.byID[int32(num)]
		if !known {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad field %d in %s", ErrMalformedFrame, num, d.Name)
			}
			b = b[n:]
			continue
		}

		var err error
		b, err = d.consumeField(m, ref, typ, b)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (d *Descriptor) consumeField(m *Message, ref fieldRef, typ protowire.Type, b []byte) ([]byte, error) {
	kind := d.kindOf(ref.field)
	repeated := ref.field.Rule == "repeated"

	// packed repeated: 数值类型以Bytes形式成组到达
	if repeated && typ == protowire.BytesType && kind != kindString && kind != kindBytes && kind != kindMessage {
		pack, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad packed field %q", ErrMalformedFrame, ref.name)
		}
		for len(pack) > 0 {
			v, vn, err := consumeScalar(kind, pack)
			if err != nil {
				return nil, fmt.Errorf("%w: packed %q", ErrMalformedFrame, ref.name)
			}
			m.append(ref.name, v)
			pack = pack[vn:]
		}
		return b[n:], nil
	}

	var (
		value any
		n     int
	)
	switch kind {
	case kindString, kindBytes, kindMessage:
		raw, rn := protowire.ConsumeBytes(b)
		if rn < 0 {
			return nil, fmt.Errorf("%w: bad field %q", ErrMalformedFrame, ref.name)
		}
		n = rn
		switch kind {
		case kindString:
			value = string(raw)
		case kindBytes:
			value = append([]byte(nil), raw...)
		default:
			sub, err := d.fieldDescriptor(ref.field)
			if err != nil {
				return nil, err
			}
			msg, err := sub.Unmarshal(raw)
			if err != nil {
				return nil, err
			}
			value = msg
		}
	default:
		v, vn, err := consumeScalar(kind, b)
		if err != nil {
			return nil, fmt.Errorf("%w: bad field %q", ErrMalformedFrame, ref.name)
		}
		value, n = v, vn
		if ref.field.Type == "bool" {
			value = value.(int64) != 0
		}
	}

	if repeated {
		m.append(ref.name, value)
	} else {
		m.values[ref.name] = value
	}
	return b[n:], nil
}

func consumeScalar(kind fieldKind, b []byte) (any, int, error) {
	switch kind {
	case kindVarint:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, n, fmt.Errorf("bad varint")
		}
		return int64(v), n, nil
	case kindZigzag:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, n, fmt.Errorf("bad varint")
		}
		return protowire.DecodeZigZag(v), n, nil
	case kindFixed32:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, n, fmt.Errorf("bad fixed32")
		}
		return int64(int32(v)), n, nil
	case kindFixed64:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, n, fmt.Errorf("bad fixed64")
		}
		return int64(v), n, nil
	case kindFloat:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, n, fmt.Errorf("bad float")
		}
		return float64(math.Float32frombits(v)), n, nil
	case kindDouble:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, n, fmt.Errorf("bad double")
		}
		return math.Float64frombits(v), n, nil
	}
	return nil, -1, fmt.Errorf("not a scalar kind")
}

func (m *Message) append(name string, v any) {
	list, _ := m.values[name].([]any)
	m.values[name] = append(list, v)
}

// Marshal 按描述符编码字段表 未提供的字段省略
// 字段按ID升序输出 保证编码结果确定
func (d *Descriptor) Marshal(values map[string]any) ([]byte, error) {
	refs := make([]fieldRef, 0, len(d.byID))
	for _, ref := range d.byID {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].field.ID < refs[j].field.ID })

	var buf []byte
	for _, ref := range refs {
		v, ok := values[ref.name]
		if !ok || v == nil {
			continue
		}

		var err error
		if ref.field.Rule == "repeated" {
			for _, item := range toSlice(v) {
				if buf, err = d.appendField(buf, ref, item); err != nil {
					return nil, err
				}
			}
		} else {
			if buf, err = d.appendField(buf, ref, v); err != nil {
				return nil, err
			}
		}
	}

	for name := range values {
		if _, ok := d.fields[name]; !ok {
			return nil, fmt.Errorf("protocol: message %s has no field %q", d.Name, name)
		}
	}
	return buf, nil
}

func (d *Descriptor) appendField(buf []byte, ref fieldRef, v any) ([]byte, error) {
	num := protowire.Number(ref.field.ID)

	switch d.kindOf(ref.field) {
	case kindVarint:
		u, err := toUint64(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s.%s: %w", d.Name, ref.name, err)
		}
		buf = protowire.AppendTag(buf, num, protowire.VarintType)
		buf = protowire.AppendVarint(buf, u)
	case kindZigzag:
		i, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s.%s: %w", d.Name, ref.name, err)
		}
		buf = protowire.AppendTag(buf, num, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(i))
	case kindFixed32:
		i, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s.%s: %w", d.Name, ref.name, err)
		}
		buf = protowire.AppendTag(buf, num, protowire.Fixed32Type)
		buf = protowire.AppendFixed32(buf, uint32(i))
	case kindFixed64:
		i, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s.%s: %w", d.Name, ref.name, err)
		}
		buf = protowire.AppendTag(buf, num, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, uint64(i))
	case kindFloat:
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s.%s: %w", d.Name, ref.name, err)
		}
		buf = protowire.AppendTag(buf, num, protowire.Fixed32Type)
		buf = protowire.AppendFixed32(buf, math.Float32bits(float32(f)))
	case kindDouble:
		f, err := toFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: field %s.%s: %w", d.Name, ref.name, err)
		}
		buf = protowire.AppendTag(buf, num, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(f))
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("protocol: field %s.%s: want string got %T", d.Name, ref.name, v)
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendString(buf, s)
	case kindBytes:
		raw, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("protocol: field %s.%s: want []byte got %T", d.Name, ref.name, v)
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	case kindMessage:
		sub, err := d.fieldDescriptor(ref.field)
		if err != nil {
			return nil, err
		}
		nested, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("protocol: field %s.%s: want map got %T", d.Name, ref.name, v)
		}
		raw, err := sub.Marshal(nested)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	}
	return buf, nil
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int32:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case [][]byte:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []map[string]any:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		return []any{v}
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("want integer got %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return uint64(i), nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("want float got %T", v)
	}
}

/*
	取值接口 缺失字段返回零值 嵌套消息返回空消息以便链式访问
*/

func (m *Message) Int(name string) int64 {
	if v, ok := m.values[name].(int64); ok {
		return v
	}
	return 0
}

func (m *Message) Uint32(name string) uint32 {
	return uint32(m.Int(name))
}

func (m *Message) Bool(name string) bool {
	switch v := m.values[name].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	}
	return false
}

func (m *Message) String(name string) string {
	if v, ok := m.values[name].(string); ok {
		return v
	}
	return ""
}

func (m *Message) Bytes(name string) []byte {
	if v, ok := m.values[name].([]byte); ok {
		return v
	}
	return nil
}

func (m *Message) Float(name string) float64 {
	switch v := m.values[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Msg 取嵌套消息 缺失时返回同描述符的空消息
func (m *Message) Msg(name string) *Message {
	if v, ok := m.values[name].(*Message); ok {
		return v
	}
	empty := &Message{values: map[string]any{}}
	if f, ok := m.desc.fields[name]; ok {
		if sub, err := m.desc.fieldDescriptor(f); err == nil {
			empty.desc = sub
			return empty
		}
	}
	empty.desc = m.desc
	return empty
}

// Has 字段是否在线路上出现过
func (m *Message) Has(name string) bool {
	_, ok := m.values[name]
	return ok
}

// Msgs 取repeated嵌套消息
func (m *Message) Msgs(name string) []*Message {
	list, _ := m.values[name].([]any)
	out := make([]*Message, 0, len(list))
	for _, v := range list {
		if msg, ok := v.(*Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Ints 取repeated整型
func (m *Message) Ints(name string) []int64 {
	list, _ := m.values[name].([]any)
	out := make([]int64, 0, len(list))
	for _, v := range list {
		if i, ok := v.(int64); ok {
			out = append(out, i)
		}
	}
	return out
}

// ByteSlices 取repeated bytes
func (m *Message) ByteSlices(name string) [][]byte {
	list, _ := m.values[name].([]any)
	out := make([][]byte, 0, len(list))
	for _, v := range list {
		if b, ok := v.([]byte); ok {
			out = append(out, b)
		}
	}
	return out
}

// Strings 取repeated字符串
func (m *Message) Strings(name string) []string {
	list, _ := m.values[name].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
