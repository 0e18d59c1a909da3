package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

/*
	liqi.json 协议定义文档
	形如 {"nested":{"lq":{"nested":{"Lobby":{"methods":{...}} "ResLogin":{"fields":{...}}}}}}
*/

// Document 协议定义文档根节点
type Document struct {
	Nested map[string]*Item `json:"nested"`
}

// Item 命名空间/消息/服务/枚举的统一节点
type Item struct {
	Fields  map[string]*Field  `json:"fields,omitempty"`
	Methods map[string]*Method `json:"methods,omitempty"`
	Values  map[string]int32   `json:"values,omitempty"`
	Nested  map[string]*Item   `json:"nested,omitempty"`
}

// Field 消息字段定义
type Field struct {
	Type string `json:"type"`
	ID   int32  `json:"id"`
	Rule string `json:"rule,omitempty"` // "repeated"
}

// Method 服务方法定义
type Method struct {
	RequestType  string `json:"requestType"`
	ResponseType string `json:"responseType"`
}

// ParseDocument 解析协议定义文档
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("protocol: parse definition document: %w", err)
	}
	if len(doc.Nested) == 0 {
		return nil, fmt.Errorf("protocol: definition document has no namespaces")
	}
	return &doc, nil
}

// Registry 把点分路径解析成消息描述符
type Registry struct {
	doc *Document
}

func NewRegistry(doc *Document) *Registry {
	return &Registry{doc: doc}
}

// Descriptor 一个已解析消息的描述符
type Descriptor struct {
	Name      string // 带命名空间全名 如 lq.ResLogin
	namespace string
	fields    map[string]*Field // 字段名索引
	byID      map[int32]fieldRef
	registry  *Registry
}

type fieldRef struct {
	name  string
	field *Field
}

// Method 解析 .lq.Lobby.heatbeat 形式的方法路径
func (r *Registry) Method(path string) (req, res *Descriptor, err error) {
	parts := strings.Split(path, ".")
	if len(parts) != 4 || parts[0] != "" {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMethod, path)
	}
	ns, service, rpc := parts[1], parts[2], parts[3]

	svc := r.lookup(ns, service)
	if svc == nil || svc.Methods == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMethod, path)
	}
	m, ok := svc.Methods[rpc]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMethod, path)
	}

	if req, err = r.Message(ns, m.RequestType); err != nil {
		return nil, nil, fmt.Errorf("%w: %q request type %q", ErrUnknownMethod, path, m.RequestType)
	}
	if res, err = r.Message(ns, m.ResponseType); err != nil {
		return nil, nil, fmt.Errorf("%w: %q response type %q", ErrUnknownMethod, path, m.ResponseType)
	}
	return req, res, nil
}

// Notify 解析 .lq.NotifyFriendStateChange 形式的通知路径
func (r *Registry) Notify(path string) (*Descriptor, error) {
	parts := strings.Split(path, ".")
	if len(parts) != 3 || parts[0] != "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotify, path)
	}
	desc, err := r.Message(parts[1], parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotify, path)
	}
	return desc, nil
}

// Message 按命名空间+消息名取描述符
func (r *Registry) Message(ns, name string) (*Descriptor, error) {
	item := r.lookup(ns, name)
	if item == nil || item.Methods != nil {
		return nil, fmt.Errorf("protocol: no message %s.%s", ns, name)
	}

	d := &Descriptor{
		Name:      ns + "." + name,
		namespace: ns,
		fields:    item.Fields,
		byID:      make(map[int32]fieldRef, len(item.Fields)),
		registry:  r,
	}
	for fname, f := range item.Fields {
		d.byID[f.ID] = fieldRef{name: fname, field: f}
	}
	return d, nil
}

// isEnum 字段类型是否为枚举(线路上按varint)
func (r *Registry) isEnum(ns, name string) bool {
	item := r.lookup(ns, name)
	return item != nil && item.Values != nil
}

func (r *Registry) lookup(ns, name string) *Item {
	space, ok := r.doc.Nested[ns]
	if !ok || space.Nested == nil {
		return nil
	}
	return space.Nested[name]
}
