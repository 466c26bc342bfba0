package returnflow

import (
	"math"
	"sync"
	"time"
)

// DefaultCountdown is how long the success page waits before going home.
const DefaultCountdown = 5 * time.Second

// Clock abstracts time for the countdown.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of time.Timer the countdown needs.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Countdown navigates once when its deadline passes or Skip is called.
// The remaining time is derived from the deadline, not from ticks.
type Countdown struct {
	clock    Clock
	deadline time.Time
	navigate func()

	mu    sync.Mutex
	timer Timer
	done  bool
}

// StartCountdown arms a countdown that calls navigate after d.
func StartCountdown(d time.Duration, navigate func()) *Countdown {
	return StartCountdownWithClock(realClock{}, d, navigate)
}

// StartCountdownWithClock is StartCountdown with an explicit clock.
func StartCountdownWithClock(clock Clock, d time.Duration, navigate func()) *Countdown {
	if d < 0 {
		d = 0
	}
	c := &Countdown{
		clock:    clock,
		deadline: clock.Now().Add(d),
		navigate: navigate,
	}
	c.mu.Lock()
	c.timer = clock.AfterFunc(d, c.fire)
	c.mu.Unlock()
	return c
}

// Deadline returns the moment navigation happens.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

// Remaining returns the whole seconds left, rounded up, never negative.
func (c *Countdown) Remaining() int {
	left := c.deadline.Sub(c.clock.Now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Skip navigates immediately.
func (c *Countdown) Skip() {
	c.fire()
}

// Stop cancels the countdown without navigating.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Done reports whether the countdown has navigated or been stopped.
func (c *Countdown) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	if c.navigate != nil {
		c.navigate()
	}
}
