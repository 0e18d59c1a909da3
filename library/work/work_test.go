package work

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAntsLoopPost(t *testing.T) {
	loop := NewAntsLoop(4)
	require.NoError(t, loop.Start())
	defer loop.Stop()

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		loop.Post(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(20), count.Load())
}

func TestAntsLoopFallbackWhenStopped(t *testing.T) {
	var fallback atomic.Int32
	done := make(chan struct{})
	l := NewAntsLoop(2, WithFallback(func(_ context.Context, fn func()) {
		fallback.Add(1)
		close(done)
	}))
	// 未Start 提交走fallback
	l.Post(func() {})
	<-done
	assert.Equal(t, int32(1), fallback.Load())
}

func TestAntsLoopPanicIsolated(t *testing.T) {
	loop := NewAntsLoop(2)
	require.NoError(t, loop.Start())
	defer loop.Stop()

	done := make(chan struct{})
	loop.Post(func() { panic("boom") })
	loop.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not survive a panicking job")
	}
}

func TestSchedulerOnce(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	done := make(chan struct{})
	id := s.Once(10*time.Millisecond, func() { close(done) })
	assert.NotZero(t, id)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("once task did not fire")
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	var fired atomic.Int32
	id := s.Forever(600*time.Millisecond, func() { fired.Add(1) })
	s.Cancel(id)
	assert.Equal(t, 0, s.Len())

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
