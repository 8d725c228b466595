package kernel

import "sync/atomic"

// FirstID is the first id handed out by a default allocator.
// 0, 1 and 2 are reserved for stdin, stdout and stderr.
const FirstID ID = 3

// IDAllocator hands out strictly increasing endpoint ids.
//
// Thread-safety: Next is linearizable (atomic add), so ids stay unique when
// endpoints are created from several goroutines.
type IDAllocator struct {
	last atomic.Int64
}

// NewIDAllocator creates an allocator whose first Next() returns first.
func NewIDAllocator(first ID) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(int64(first) - 1)
	return a
}

// Next returns the next id.
func (a *IDAllocator) Next() ID {
	return ID(a.last.Add(1))
}

// Last returns the most recently allocated id without allocating.
// Before the first allocation it returns first-1.
func (a *IDAllocator) Last() ID {
	return ID(a.last.Load())
}
