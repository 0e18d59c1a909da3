// Package push routes user-facing events produced by the connection core to
// the hosting bot. The core only knows deliver(target, message); transporting
// the message to an end user is the host's problem.
package push

import (
	"context"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/store"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

// Kind 投递方式
type Kind string

const (
	KindDirect    Kind = "direct"
	KindGroup     Kind = "group"
	KindBroadcast Kind = "broadcast" // 运维元信息通道
)

// Delivery 一次待投递消息
type Delivery struct {
	Kind    Kind
	BotID   string
	Target  string // direct: user_id group: 群id broadcast: 忽略
	Message string
}

// Sink 宿主侧投递接口
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Router 按订阅表把事件派发到Sink
type Router struct {
	sink         Sink
	pushes       store.PushRepo
	metaBotID    string
	metaTarget   string // 运维广播目标 为空则只打日志
	mirrorToMeta bool   // 用户事件是否同时抄送运维通道
}

func NewRouter(sink Sink, pushes store.PushRepo, metaBotID, metaTarget string, mirrorToMeta bool) *Router {
	return &Router{
		sink:         sink,
		pushes:       pushes,
		metaBotID:    metaBotID,
		metaTarget:   metaTarget,
		mirrorToMeta: mirrorToMeta,
	}
}

// Meta 运维广播 如异地登录/好友申请
func (r *Router) Meta(ctx context.Context, message string) {
	if r.metaTarget == "" {
		log.Warnf("[push] meta target not configured, dropping: %s", message)
		return
	}
	d := Delivery{Kind: KindBroadcast, BotID: r.metaBotID, Target: r.metaTarget, Message: message}
	if err := r.sink.Deliver(ctx, d); err != nil {
		log.Errorf("[push] meta deliver failed: %v", err)
	}
}

// ToUser 按targetUID的订阅配置投递 未订阅或关闭时静默丢弃
func (r *Router) ToUser(ctx context.Context, targetUID, message string) {
	if r.mirrorToMeta {
		r.Meta(ctx, message)
	}

	sub, err := r.pushes.FindByTarget(ctx, targetUID)
	if err != nil {
		log.Errorf("[push] subscription lookup failed for %s: %v", targetUID, err)
		return
	}
	if sub == nil || sub.PushID == store.PushOff {
		return
	}

	d := Delivery{Kind: KindGroup, BotID: sub.BotID, Target: sub.PushID, Message: message}
	if sub.PushID == store.PushDirect {
		d.Kind = KindDirect
		d.Target = sub.UserID
	}
	if err := r.sink.Deliver(ctx, d); err != nil {
		log.Errorf("[push] deliver to %s failed: %v", targetUID, err)
	}
}

// LogSink 默认实现 只打日志 宿主接入后替换
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, d Delivery) error {
	log.Infof("[push] %s bot=%s target=%s: %s", d.Kind, d.BotID, d.Target, d.Message)
	return nil
}
