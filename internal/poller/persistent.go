package poller

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
)

// NotificationSource is the part of the kernel registry the persistent
// poller subscribes to.
type NotificationSource interface {
	Subscribe(id kernel.ID, s kernel.Subscriber) bool
}

// PersistentStats counts the work a PersistentPoller has done.
type PersistentStats struct {
	// Syscalls is the number of AddInterest and Wait calls.
	Syscalls int64
	// Wakeups is the number of times a blocked Wait re-checked the queue.
	Wakeups int64
	// Pushed is the number of events added to the ready queue.
	Pushed int64
	// Coalesced is the number of notifications absorbed by an already queued event.
	Coalesced int64
	// Timeouts is the number of Wait calls that returned on timeout.
	Timeouts int64
}

// PersistentPoller is an epoll-style poller with a persistent interest list
// and a ready queue fed by kernel notifications.
//
// Thread-safety model:
//   - Notifications (from Registry.Deliver) are safe from any goroutine.
//   - AddInterest and Wait belong to the control goroutine.
type PersistentPoller struct {
	src        NotificationSource
	idempotent bool
	logger     *slog.Logger

	mu         sync.Mutex
	interest   map[kernel.ID]kernel.EventMask
	subscribed map[kernel.ID]bool

	ready *readyQueue

	syscalls  atomic.Int64
	wakeups   atomic.Int64
	pushed    atomic.Int64
	coalesced atomic.Int64
	timeouts  atomic.Int64
}

// PersistentOption configures a PersistentPoller.
type PersistentOption func(*PersistentPoller)

// WithIdempotentInterest makes a repeated AddInterest for the same id update
// the mask without attaching another subscription. By default every call
// subscribes again.
func WithIdempotentInterest(on bool) PersistentOption {
	return func(p *PersistentPoller) {
		p.idempotent = on
	}
}

// WithPersistentLogger sets the logger for timeout notices.
func WithPersistentLogger(l *slog.Logger) PersistentOption {
	return func(p *PersistentPoller) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPersistentPoller creates an epoll-style poller over src.
func NewPersistentPoller(src NotificationSource, opts ...PersistentOption) *PersistentPoller {
	p := &PersistentPoller{
		src:      src,
		logger:   slog.Default(),
		interest:   make(map[kernel.ID]kernel.EventMask),
		subscribed: make(map[kernel.ID]bool),
		ready:      newReadyQueue(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddInterest records mask for id and, if id names a real endpoint,
// subscribes so that future deliveries push a readiness event. O(1).
//
// Unless WithIdempotentInterest is set, calling AddInterest twice for the
// same id attaches a second subscription. The ready queue absorbs the
// duplicate notification, but the endpoint's subscriber list keeps growing.
// In idempotent mode an id whose endpoint did not exist yet is subscribed by
// the first AddInterest after it appears.
func (p *PersistentPoller) AddInterest(id kernel.ID, mask kernel.EventMask) {
	p.syscalls.Add(1)

	p.mu.Lock()
	p.interest[id] = mask
	subscribed := p.subscribed[id]
	p.mu.Unlock()

	if subscribed && p.idempotent {
		return
	}
	if !p.src.Subscribe(id, p.notify) {
		p.logger.Debug("interest recorded for unknown endpoint", "id", id, "mask", mask)
		return
	}
	p.mu.Lock()
	p.subscribed[id] = true
	p.mu.Unlock()
}

// Subscribed reports whether an AddInterest for id has attached a
// subscription to a live endpoint.
func (p *PersistentPoller) Subscribed(id kernel.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribed[id]
}

// Interest returns the registered mask for id.
func (p *PersistentPoller) Interest(id kernel.ID) (kernel.EventMask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.interest[id]
	return m, ok
}

// InterestLen returns the number of registered ids.
func (p *PersistentPoller) InterestLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.interest)
}

// notify is the subscription attached to each endpoint. It runs on the
// delivering goroutine.
func (p *PersistentPoller) notify(id kernel.ID, kind kernel.Kind) {
	bit := kind.Mask()

	p.mu.Lock()
	mask, ok := p.interest[id]
	p.mu.Unlock()

	if !ok || mask&bit == 0 {
		return
	}
	if p.ready.Push(Event{ID: id, Mask: bit}) {
		p.pushed.Add(1)
		return
	}
	p.coalesced.Add(1)
}

// Wait blocks until the ready queue is non-empty or timeout elapses, then
// drains up to maxEvents events in FIFO order. Each drained id may be queued
// again by its next delivery.
//
// A timeout with nothing ready returns an empty slice and a nil error; it is
// reported with an informational log record only. A negative timeout
// (Forever) waits indefinitely.
func (p *PersistentPoller) Wait(maxEvents int, timeout time.Duration) ([]Event, error) {
	if maxEvents <= 0 {
		return nil, ErrInvalidMaxEvents
	}
	p.syscalls.Add(1)
	start := time.Now()

	var waits int64
	nonEmpty := func() bool {
		waits++
		p.wakeups.Add(1)
		return p.ready.Len() > 0
	}
	if !blockUntil(p.ready.Wait(), 0, timeout, nonEmpty) {
		p.timeouts.Add(1)
		p.logger.Info("timeout reached",
			"poller", "persistent",
			"timeout", timeout,
			"elapsed", time.Since(start),
			"waits", waits,
		)
		return []Event{}, nil
	}

	return p.ready.Drain(maxEvents), nil
}

// Pending returns the number of events waiting in the ready queue.
func (p *PersistentPoller) Pending() int {
	return p.ready.Len()
}

// Queued reports whether id is currently in the ready queue.
func (p *PersistentPoller) Queued(id kernel.ID) bool {
	return p.ready.Contains(id)
}

// Inject pushes an event straight into the ready queue, bypassing the
// registry. The benchmark uses it to model the kernel marking many
// endpoints ready at once. It reports whether a new entry was added.
func (p *PersistentPoller) Inject(ev Event) bool {
	if p.ready.Push(ev) {
		p.pushed.Add(1)
		return true
	}
	p.coalesced.Add(1)
	return false
}

// Stats returns a snapshot of the poller's counters.
func (p *PersistentPoller) Stats() PersistentStats {
	return PersistentStats{
		Syscalls:  p.syscalls.Load(),
		Wakeups:   p.wakeups.Load(),
		Pushed:    p.pushed.Load(),
		Coalesced: p.coalesced.Load(),
		Timeouts:  p.timeouts.Load(),
	}
}
