package returnflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	fn    func()
	d     time.Duration
	timer *fakeTimer
	armed int
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn, c.d = f, d
	c.timer = &fakeTimer{}
	c.armed++
	return c.timer
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fire := c.fn != nil && !c.timer.stopped && c.now.Sub(time.Unix(0, 0)) >= c.d
	fn := c.fn
	c.mu.Unlock()
	if fire {
		fn()
	}
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func TestCountdown_RemainingFromDeadline(t *testing.T) {
	clock := newFakeClock()
	navigated := 0
	c := StartCountdownWithClock(clock, 5*time.Second, func() { navigated++ })

	assert.Equal(t, 1, clock.armed, "one timer for the whole countdown")
	assert.Equal(t, 5, c.Remaining())

	clock.advance(300 * time.Millisecond)
	assert.Equal(t, 5, c.Remaining())

	clock.advance(1 * time.Second)
	assert.Equal(t, 4, c.Remaining())

	clock.advance(3700 * time.Millisecond)
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 1, navigated)
	assert.True(t, c.Done())

	clock.advance(time.Second)
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 1, navigated)
}

func TestCountdown_SkipNavigatesOnce(t *testing.T) {
	clock := newFakeClock()
	navigated := 0
	c := StartCountdownWithClock(clock, 5*time.Second, func() { navigated++ })

	c.Skip()
	c.Skip()
	assert.Equal(t, 1, navigated)
	assert.True(t, clock.timer.stopped)

	clock.advance(10 * time.Second)
	assert.Equal(t, 1, navigated)
}

func TestCountdown_StopPreventsNavigation(t *testing.T) {
	clock := newFakeClock()
	navigated := 0
	c := StartCountdownWithClock(clock, 5*time.Second, func() { navigated++ })

	c.Stop()
	clock.advance(10 * time.Second)
	c.Skip()
	assert.Equal(t, 0, navigated)
}

func TestCountdown_RealTimer(t *testing.T) {
	done := make(chan struct{})
	c := StartCountdown(20*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not navigate")
	}
	require.True(t, c.Done())
	assert.Equal(t, 0, c.Remaining())
}
