// Package clocktest provides a manually driven clock for tests.
package clocktest

import (
	"sync"
	"time"
)

// Clock is a fake time source. Time only moves when Advance or Set is called.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	reads int
}

// New returns a Clock pinned to start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time. Its method value satisfies throttle.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Reads reports how many times Now has been called.
func (c *Clock) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
