package reactor

import "sync/atomic"

// Clock is the reactor's logical dispatch clock.
//
// Every dispatch is stamped with a strictly increasing sequence number, so
// traces can be compared without relying on wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use, though only the loop
// goroutine normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
