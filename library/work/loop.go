package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
	"github.com/KimigaiiWuyi/MajsoulUID/library/xgo"
)

/*
	任务池 通知处理等异步任务统一提交到这里
*/

const defaultPendingNum = 100

// ITaskLoop 协程池管理接口
type ITaskLoop interface {
	Start() error
	Stop()
	Status() LoopStatus
	Post(job func())
	PostCtx(ctx context.Context, job func())
}

// LoopStatus 当前池状态
type LoopStatus struct {
	Capacity int
	Running  int
	Free     int
}

type Option func(*antsLoop)

// WithFallback 自定义任务提交失败处理策略
func WithFallback(fallback func(ctx context.Context, fn func())) Option {
	return func(l *antsLoop) {
		l.fallback = fallback
	}
}

type antsLoop struct {
	mu       sync.RWMutex
	pool     *ants.Pool
	size     int
	fallback func(context.Context, func())
}

// NewAntsLoop 创建协程池实例
func NewAntsLoop(size int, opts ...Option) ITaskLoop {
	if size <= 0 {
		size = defaultPendingNum
	}
	l := &antsLoop{
		size: size,
		fallback: func(ctx context.Context, fn func()) {
			go safeRun(ctx, fn)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *antsLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		log.Warnf("antsLoop already started.")
		return nil
	}

	pool, err := ants.NewPool(l.size, ants.WithExpiryDuration(60*time.Second))
	if err != nil {
		return fmt.Errorf("pool init failed: %w", err)
	}

	l.pool = pool
	log.Infof("antsLoop start... [size:%d]", l.size)
	return nil
}

func (l *antsLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		p := l.pool
		l.pool = nil
		p.Release()
		log.Infof("antsLoop stopping [running:%d]", p.Running())
	}
}

func (l *antsLoop) Status() LoopStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pool == nil {
		return LoopStatus{}
	}

	capacity := l.pool.Cap()
	running := l.pool.Running()
	free := capacity - running
	if free < 0 {
		free = 0
	}
	return LoopStatus{Capacity: capacity, Running: running, Free: free}
}

func (l *antsLoop) Post(job func()) {
	l.PostCtx(context.Background(), job)
}

func (l *antsLoop) PostCtx(ctx context.Context, job func()) {
	if ctx.Err() == nil {
		l.submit(ctx, job)
	}
}

func (l *antsLoop) submit(ctx context.Context, fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pool == nil || l.pool.IsClosed() {
		l.triggerFallback(ctx, fn, "loop not started or loop is closed.")
		return
	}

	if err := l.pool.Submit(func() { safeRun(ctx, fn) }); err != nil {
		l.triggerFallback(ctx, fn, err.Error())
	}
}

func (l *antsLoop) triggerFallback(ctx context.Context, fn func(), reason string) {
	log.Warnf("antsLoop fallback. reason=%s", reason)
	l.fallback(ctx, fn)
}

func safeRun(ctx context.Context, fn func()) {
	defer xgo.RecoverFromError(nil)
	if ctx.Err() == nil {
		fn()
	}
}
