package testutil

import "sync/atomic"

// Sequence numbers trace entries. The first Next returns 1.
//
// Unlike reactor.Clock, a Sequence can be reset so one scenario can be
// replayed with identical numbering.
type Sequence struct {
	n atomic.Int64
}

// NewSequence returns a sequence at zero.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next advances and returns the new value.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last value handed out, zero if none.
func (s *Sequence) Current() int64 {
	return s.n.Load()
}

// Reset returns the sequence to zero.
func (s *Sequence) Reset() {
	s.n.Store(0)
}
