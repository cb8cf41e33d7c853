package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/lockguard/lockguard/internal/clock"
)

type manualTask struct {
	handle Handle
	due    time.Duration // monotonic reading at which the task fires
	period time.Duration // zero for one-shot tasks
	fn     func()
}

// Manual is a deterministic scheduler driven by a clock.Manual. Time only
// moves inside Advance, which fires due callbacks in order on the caller's
// goroutine.
type Manual struct {
	clk   *clock.Manual
	mu    sync.Mutex
	next  Handle
	tasks map[Handle]*manualTask
}

// NewManual returns a scheduler that advances clk.
func NewManual(clk *clock.Manual) *Manual {
	return &Manual{clk: clk, tasks: make(map[Handle]*manualTask)}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	return m.add(d, 0, fn)
}

// Every implements Scheduler.
func (m *Manual) Every(d time.Duration, fn func()) Handle {
	if d <= 0 {
		d = time.Millisecond
	}
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	h := m.next
	m.tasks[h] = &manualTask{handle: h, due: m.clk.Monotonic() + d, period: period, fn: fn}
	return h
}

// Cancel implements Scheduler.
func (m *Manual) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, h)
}

// CancelAll implements Scheduler.
func (m *Manual) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[Handle]*manualTask)
}

// Pending returns the number of armed handles.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, stopping at every due task to run
// it. Callbacks may arm or cancel tasks; new tasks due inside the window
// fire in the same call.
func (m *Manual) Advance(d time.Duration) {
	target := m.clk.Monotonic() + d
	for {
		m.mu.Lock()
		t := m.earliestLocked(target)
		if t == nil {
			m.mu.Unlock()
			break
		}
		at := t.due
		if t.period > 0 {
			t.due += t.period
		} else {
			delete(m.tasks, t.handle)
		}
		fn := t.fn
		m.mu.Unlock()

		if now := m.clk.Monotonic(); at > now {
			m.clk.Advance(at - now)
		}
		fn()
	}
	if now := m.clk.Monotonic(); target > now {
		m.clk.Advance(target - now)
	}
}

func (m *Manual) earliestLocked(limit time.Duration) *manualTask {
	var due []*manualTask
	for _, t := range m.tasks {
		if t.due <= limit {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].handle < due[j].handle
	})
	return due[0]
}

var _ Scheduler = (*Manual)(nil)
