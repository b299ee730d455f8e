package timectrl

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by blocking waits. Depending on an interface
// rather than the time package lets tests drive timeouts deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// WallClock is the real clock.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time { return time.Now() }

// After implements Clock.
func (WallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type waiter struct {
	at time.Time
	ch chan time.Time
}

// ManualClock only moves when Advance is called. With AutoAdvance set,
// every call to After advances the clock by d and fires immediately, which
// turns polling loops into deterministic, instant iterations.
type ManualClock struct {
	mu          sync.Mutex
	now         time.Time
	waiters     []waiter
	AutoAdvance bool

	// OnAdvance, if set, runs after every advance with the new time. Tests
	// use it to change the world between two polls.
	OnAdvance func(time.Time)
}

// NewManualClock returns a clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After implements Clock.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	w := waiter{at: c.now.Add(d), ch: ch}
	c.waiters = append(c.waiters, w)
	auto := c.AutoAdvance
	c.mu.Unlock()

	if auto {
		c.Advance(d)
	}
	return ch
}

// Advance moves the clock forward by d and fires every due waiter in order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	sort.Slice(c.waiters, func(i, j int) bool { return c.waiters[i].at.Before(c.waiters[j].at) })
	var pending []waiter
	for _, w := range c.waiters {
		if !w.at.After(now) {
			w.ch <- now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
	hook := c.OnAdvance
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
}

// Pending returns the number of waiters that have not fired yet.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
