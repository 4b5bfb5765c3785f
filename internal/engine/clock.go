package engine

import "sync/atomic"

// Clock is the monotonic logical clock behind Snapshot.Version.
//
// Every mutation of a session takes the next value, so two snapshots of the
// same session can be ordered without consulting wall time, and a caller can
// detect that somebody else changed the session since it last looked.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), even
// though a Session itself is single-writer.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific version.
// Used when a persisted session is rebuilt and must keep counting from
// where it left off.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next version and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current version without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
