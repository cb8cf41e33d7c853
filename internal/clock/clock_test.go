package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/lockguard/lockguard/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestSystem_MonotonicNonDecreasing(t *testing.T) {
	c := clock.NewSystem()
	a := c.Monotonic()
	b := c.Monotonic()
	assert.GreaterOrEqual(t, a, time.Duration(0))
	assert.GreaterOrEqual(t, b, a)
	assert.WithinDuration(t, time.Now(), c.Now(), time.Minute)
}

func TestManual_Advance(t *testing.T) {
	start := time.UnixMilli(0)
	c := clock.NewManual(start)
	assert.Equal(t, time.Duration(0), c.Monotonic())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, c.Monotonic())
	assert.Equal(t, int64(1500), c.Now().UnixMilli())

	c.Advance(-time.Second)
	assert.Equal(t, 1500*time.Millisecond, c.Monotonic(), "negative advance is ignored")
}

func TestManual_SetWallLeavesMonotonic(t *testing.T) {
	c := clock.NewManual(time.UnixMilli(0))
	c.Advance(time.Second)

	c.SetWall(time.UnixMilli(0).Add(-24 * time.Hour))
	assert.Equal(t, time.Second, c.Monotonic())
	assert.True(t, c.Now().Before(time.UnixMilli(0)))
}

func TestManual_ConcurrentAdvance(t *testing.T) {
	c := clock.NewManual(time.UnixMilli(0))
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
			_ = c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10*time.Second, c.Monotonic())
	assert.Equal(t, int64(10_000), c.Now().UnixMilli())
}
