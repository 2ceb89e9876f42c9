package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable calendar for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	today time.Time
}

// NewFixedClock creates a clock whose Today is the given date in UTC.
func NewFixedClock(y int, m time.Month, d int) *FixedClock {
	return &FixedClock{today: Date(y, m, d)}
}

// Today returns the current fixed date.
func (c *FixedClock) Today() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.today
}

// Advance moves the clock forward by days.
func (c *FixedClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.today = c.today.AddDate(0, 0, days)
}

// Date builds a calendar date in UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
