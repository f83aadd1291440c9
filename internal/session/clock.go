package session

import (
	"sync"
	"time"
)

// Clock is a one-second countdown for an active exam session. The remaining
// value is floored at zero and the expiry callback is latched to fire
// exactly once, no matter how ticks and Stop race.
type Clock struct {
	mu        sync.Mutex
	remaining int
	interval  time.Duration
	stop      chan struct{}
	started   bool
	stopped   bool
	expired   bool

	onTick   func(remaining int)
	onExpire func()
}

// NewClock builds a countdown of totalSeconds ticking every interval.
// Production callers pass time.Second; tests shrink the interval. Callbacks
// run on the clock goroutine, outside the clock lock.
func NewClock(totalSeconds int, interval time.Duration, onTick func(remaining int), onExpire func()) *Clock {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return &Clock{
		remaining: totalSeconds,
		interval:  interval,
		stop:      make(chan struct{}),
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start launches the countdown goroutine. Subsequent calls are no-ops.
// A zero-length countdown expires on the first tick.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

func (c *Clock) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			remaining, expired := c.tick()
			if c.onTick != nil {
				c.onTick(remaining)
			}
			if expired {
				if c.onExpire != nil {
					c.onExpire()
				}
				return
			}
		}
	}
}

// tick decrements once and reports whether this tick crossed into expiry.
func (c *Clock) tick() (remaining int, expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.expired {
		return c.remaining, false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.expired = true
		return 0, true
	}
	return c.remaining, false
}

// Remaining returns the seconds left, never negative.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop halts the countdown and releases the ticker. Safe to call more than
// once and from callbacks.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
}
