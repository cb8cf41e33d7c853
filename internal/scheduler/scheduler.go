// Package scheduler arms one-shot and repeating callbacks and tracks the
// handles so an owner can cancel all of them at teardown.
package scheduler

import (
	"sync"
	"time"

	kclock "k8s.io/utils/clock"
)

// Handle identifies an armed callback. The zero Handle is never issued.
type Handle uint64

// Scheduler arms callbacks. Callbacks run on a goroutine owned by the
// implementation and must do their own locking.
type Scheduler interface {
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Handle
	// Every runs fn every d until canceled.
	Every(d time.Duration, fn func()) Handle
	// Cancel disarms h. Unknown or already fired handles are ignored.
	Cancel(h Handle)
	// CancelAll disarms every outstanding handle.
	CancelAll()
}

type realTask struct {
	timer  kclock.Timer
	ticker kclock.Ticker
	stop   chan struct{}
}

// Real schedules on a k8s clock, the host clock by default.
type Real struct {
	clk   kclock.WithTickerAndDelayedExecution
	mu    sync.Mutex
	next  Handle
	tasks map[Handle]*realTask
}

// NewReal returns a scheduler backed by the host clock.
func NewReal() *Real {
	return NewWithClock(kclock.RealClock{})
}

// NewWithClock returns a scheduler driven by clk.
func NewWithClock(clk kclock.WithTickerAndDelayedExecution) *Real {
	return &Real{clk: clk, tasks: make(map[Handle]*realTask)}
}

// AfterFunc implements Scheduler.
func (s *Real) AfterFunc(d time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	t := &realTask{}
	s.tasks[h] = t
	// The callback blocks on s.mu until registration completes.
	t.timer = s.clk.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.tasks[h]
		delete(s.tasks, h)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return h
}

// Every implements Scheduler.
func (s *Real) Every(d time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	t := &realTask{ticker: s.clk.NewTicker(d), stop: make(chan struct{})}
	s.tasks[h] = t
	go func() {
		for {
			select {
			case <-t.stop:
				return
			case <-t.ticker.C():
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

// Cancel implements Scheduler.
func (s *Real) Cancel(h Handle) {
	s.mu.Lock()
	t, ok := s.tasks[h]
	delete(s.tasks, h)
	s.mu.Unlock()
	if ok {
		t.halt()
	}
}

// CancelAll implements Scheduler.
func (s *Real) CancelAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[Handle]*realTask)
	s.mu.Unlock()
	for _, t := range tasks {
		t.halt()
	}
}

// Pending returns the number of armed handles.
func (s *Real) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (t *realTask) halt() {
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stop)
	}
}

var _ Scheduler = (*Real)(nil)
