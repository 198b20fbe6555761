// Package manual provides a hand-advanced clock for tests and replays.
package manual

import (
	"sync"
	"time"
)

// Clock implements library.Clock with a time that only moves when told to.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New creates a Clock starting at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current manual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
