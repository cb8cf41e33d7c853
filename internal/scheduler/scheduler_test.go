package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	kclocktesting "k8s.io/utils/clock/testing"

	"github.com/lockguard/lockguard/internal/clock"
	"github.com/lockguard/lockguard/internal/scheduler"
)

func TestManual_AfterFuncFiresOnce(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(0))
	s := scheduler.NewManual(clk)

	var fired []time.Duration
	s.AfterFunc(time.Second, func() { fired = append(fired, clk.Monotonic()) })

	s.Advance(999 * time.Millisecond)
	assert.Empty(t, fired)

	s.Advance(5 * time.Second)
	assert.Equal(t, []time.Duration{time.Second}, fired, "fires at its due time, once")
	assert.Equal(t, 5999*time.Millisecond, clk.Monotonic())
	assert.Equal(t, 0, s.Pending())
}

func TestManual_EveryRepeats(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(0))
	s := scheduler.NewManual(clk)

	n := 0
	h := s.Every(time.Second, func() { n++ })
	s.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, n)

	s.Cancel(h)
	s.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
}

func TestManual_OrderAndNestedArming(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(0))
	s := scheduler.NewManual(clk)

	var order []string
	s.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	s.AfterFunc(time.Second, func() {
		order = append(order, "a")
		s.AfterFunc(500*time.Millisecond, func() { order = append(order, "a2") })
	})
	s.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "a2", "b"}, order)
}

func TestManual_CallbackCanCancelItself(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(0))
	s := scheduler.NewManual(clk)

	n := 0
	var h scheduler.Handle
	h = s.Every(time.Second, func() {
		n++
		if n == 2 {
			s.Cancel(h)
		}
	})
	s.Advance(10 * time.Second)
	assert.Equal(t, 2, n)
}

func TestManual_CancelAll(t *testing.T) {
	clk := clock.NewManual(time.UnixMilli(0))
	s := scheduler.NewManual(clk)

	n := 0
	s.AfterFunc(time.Second, func() { n++ })
	s.Every(time.Second, func() { n++ })
	assert.Equal(t, 2, s.Pending())

	s.CancelAll()
	s.Advance(time.Minute)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, s.Pending())
}

func TestReal_AfterFuncWithFakeClock(t *testing.T) {
	fake := kclocktesting.NewFakeClock(time.UnixMilli(0))
	s := scheduler.NewWithClock(fake)

	var n atomic.Int32
	s.AfterFunc(time.Second, func() { n.Add(1) })
	assert.Equal(t, 1, s.Pending())

	fake.Step(time.Second)
	assert.Equal(t, int32(1), n.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestReal_CancelBeforeFire(t *testing.T) {
	fake := kclocktesting.NewFakeClock(time.UnixMilli(0))
	s := scheduler.NewWithClock(fake)

	var n atomic.Int32
	h := s.AfterFunc(time.Second, func() { n.Add(1) })
	s.Cancel(h)
	fake.Step(2 * time.Second)
	assert.Equal(t, int32(0), n.Load())
}

func TestReal_EveryAndCancelAll(t *testing.T) {
	s := scheduler.NewReal()

	var n atomic.Int32
	s.Every(5*time.Millisecond, func() { n.Add(1) })
	assert.Eventually(t, func() bool { return n.Load() >= 2 }, 2*time.Second, time.Millisecond)

	s.CancelAll()
	assert.Equal(t, 0, s.Pending())
	seen := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, n.Load(), seen+1, "at most one in-flight tick after cancel")
}
