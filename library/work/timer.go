package work

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RussellLuo/timingwheel"

	"github.com/KimigaiiWuyi/MajsoulUID/library/xgo"
)

/*
	定时任务调度器 时间轮实现
*/

const (
	defaultTickPrecision = 500 * time.Millisecond
	defaultWheelSize     = 128
)

// Scheduler 定时任务调度器接口
type Scheduler interface {
	Len() int
	Once(delay time.Duration, f func()) int64
	Forever(interval time.Duration, f func()) int64
	Cancel(taskID int64)
	CancelAll()
	Stop()
}

// IExecutor 任务执行器接口 用于把任务转交协程池
type IExecutor interface {
	Post(job func())
}

type everySchedule struct {
	interval time.Duration
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

type wheelScheduler struct {
	tw       *timingwheel.TimingWheel
	executor IExecutor

	mu     sync.Mutex
	nextID int64
	timers map[int64]*timingwheel.Timer
	closed atomic.Bool
}

// NewScheduler 创建时间轮调度器 executor为nil时任务在独立协程执行
func NewScheduler(executor IExecutor) Scheduler {
	tw := timingwheel.NewTimingWheel(defaultTickPrecision, defaultWheelSize)
	tw.Start()
	return &wheelScheduler{
		tw:       tw,
		executor: executor,
		timers:   make(map[int64]*timingwheel.Timer),
	}
}

func (s *wheelScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *wheelScheduler) Once(delay time.Duration, f func()) int64 {
	if s.closed.Load() {
		return 0
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.timers[id] = s.tw.AfterFunc(delay, func() {
		s.remove(id)
		s.execute(f)
	})
	return id
}

func (s *wheelScheduler) Forever(interval time.Duration, f func()) int64 {
	if s.closed.Load() || interval <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.timers[id] = s.tw.ScheduleFunc(everySchedule{interval}, func() {
		s.execute(f)
	})
	return id
}

func (s *wheelScheduler) Cancel(taskID int64) {
	s.mu.Lock()
	t, ok := s.timers[taskID]
	if ok {
		delete(s.timers, taskID)
	}
	s.mu.Unlock()

	if ok {
		t.Stop()
	}
}

func (s *wheelScheduler) CancelAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[int64]*timingwheel.Timer)
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

func (s *wheelScheduler) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.CancelAll()
	s.tw.Stop()
}

func (s *wheelScheduler) remove(id int64) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()
}

func (s *wheelScheduler) execute(f func()) {
	run := func() {
		defer xgo.RecoverFromError(nil)
		f()
	}
	if s.executor != nil {
		s.executor.Post(run)
	} else {
		go run()
	}
}
