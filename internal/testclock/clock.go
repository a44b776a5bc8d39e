// Package testclock provides a controllable time source for tests.
package testclock

import (
	"sync"
	"time"
)

// Reference is the default starting instant for clocks created with a zero time.
var Reference = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// New returns a clock set to start, or to Reference when start is zero.
func New(start time.Time) *Clock {
	if start.IsZero() {
		start = Reference
	}
	return &Clock{current: start}
}

// Now returns the instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
