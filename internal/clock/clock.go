// Package clock supplies the two time sources the lock engine depends on:
// wall-clock time for trust deadlines and display, and a monotonic reading
// for timer budgets that must not move when the wall clock is adjusted.
package clock

import (
	"sync"
	"time"

	kclock "k8s.io/utils/clock"
)

// PolicyClock is the time source consulted on every lock decision.
type PolicyClock interface {
	// Now returns the wall-clock time.
	Now() time.Time
	// Monotonic returns a non-decreasing reading that ignores wall-clock
	// adjustments. Only differences between readings are meaningful.
	Monotonic() time.Duration
}

// System is the production clock.
type System struct {
	clk  kclock.PassiveClock
	base time.Time
}

// NewSystem returns a clock backed by the host time. The monotonic reading
// starts at zero when the clock is created.
func NewSystem() *System {
	c := kclock.RealClock{}
	return &System{clk: c, base: c.Now()}
}

// Now returns the current wall-clock time.
func (s *System) Now() time.Time {
	return s.clk.Now()
}

// Monotonic returns the time elapsed since the clock was created, measured
// with the runtime's monotonic reading.
func (s *System) Monotonic() time.Duration {
	return s.clk.Since(s.base)
}

// Manual is a controllable clock for tests and simulations.
type Manual struct {
	mu   sync.Mutex
	wall time.Time
	mono time.Duration
}

// NewManual returns a manual clock whose wall time starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{wall: start}
}

// Now returns the simulated wall time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wall
}

// Monotonic returns the simulated monotonic reading.
func (m *Manual) Monotonic() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mono
}

// Advance moves both time sources forward by d.
func (m *Manual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mono += d
	m.wall = m.wall.Add(d)
}

// SetWall jumps the wall clock without touching the monotonic reading,
// as an NTP correction or a manual clock change would.
func (m *Manual) SetWall(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wall = t
}

// Suspend models the process sleeping for d: the wall clock moves on
// while nothing observed the pause. Scheduler callbacks do not fire.
func (m *Manual) Suspend(d time.Duration) {
	m.Advance(d)
}

var (
	_ PolicyClock = (*System)(nil)
	_ PolicyClock = (*Manual)(nil)
)
