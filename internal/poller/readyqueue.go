package poller

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/roach88/pollsim/internal/kernel"
)

// Event is a readiness notification for one endpoint.
type Event struct {
	ID   kernel.ID
	Mask kernel.EventMask
}

// readyQueue is the persistent poller's FIFO of undelivered events.
//
// An endpoint id appears at most once. Pushing an id that is already queued
// merges the mask into the queued event instead of adding a second entry;
// the id becomes eligible again once a drain removes it.
//
// Thread-safety: Push may be called from producer goroutines (deliveries)
// while the control goroutine drains. Every mutation holds mu.
//
// The signal channel (buffered, size 1) coalesces wake-ups for a waiter.
type readyQueue struct {
	mu     sync.Mutex
	events *queue.Queue // of *Event
	queued map[kernel.ID]*Event
	signal chan struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{
		events: queue.New(),
		queued: make(map[kernel.ID]*Event),
		signal: make(chan struct{}, 1),
	}
}

// Push appends ev unless its id is already queued. It reports whether a new
// entry was added.
func (q *readyQueue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.queued[ev.ID]; ok {
		existing.Mask |= ev.Mask
		return false
	}

	e := ev
	q.events.Add(&e)
	q.queued[ev.ID] = &e

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes up to max events from the front, in FIFO order.
func (q *readyQueue) Drain(max int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.events.Length()
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := q.events.Remove().(*Event)
		delete(q.queued, e.ID)
		out = append(out, *e)
	}
	return out
}

// Contains reports whether id is currently queued.
func (q *readyQueue) Contains(id kernel.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[id]
	return ok
}

// Len returns the number of queued events.
func (q *readyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events.Length()
}

// Wait returns the channel that fires after a Push.
func (q *readyQueue) Wait() <-chan struct{} {
	return q.signal
}
