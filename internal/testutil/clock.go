package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the wall time ManualClock starts at when none is given.
// Fixed so golden files never embed the real date.
var DefaultEpoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

// ManualClock is a wall-clock source that only moves when told to.
//
// Pass clock.Now wherever a func() time.Time is expected (engine.WithNow)
// to make timestamps and date-relative rules deterministic.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at start, or at DefaultEpoch if
// start is the zero time.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &ManualClock{now: start}
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
