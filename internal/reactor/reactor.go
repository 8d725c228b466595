package reactor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
)

const (
	// DefaultBatchSize is the max events drained per pass.
	DefaultBatchSize = 3

	// DefaultWaitTimeout bounds each wait inside Run.
	DefaultWaitTimeout = 5 * time.Second

	// DefaultThrottle is the pause after each callback.
	DefaultThrottle = 10 * time.Millisecond
)

// Callback handles readiness for one endpoint. It runs on the loop goroutine
// and must return before the next event is dispatched.
type Callback func(id kernel.ID)

// Dispatch describes one callback invocation.
type Dispatch struct {
	Seq  int64
	ID   kernel.ID
	Mask kernel.EventMask
}

// Reactor maps endpoint ids to callbacks and dispatches readiness events
// drained from a PersistentPoller.
//
// Thread-safety model:
//   - Register is safe from any goroutine, including from inside a callback.
//   - RunOnce and Run must be called from exactly one goroutine.
//
// INVARIANTS:
//   - At most one callback per endpoint; Register overwrites.
//   - Callbacks run one at a time, in ready-queue drain order.
type Reactor struct {
	poller *poller.PersistentPoller
	clock  *Clock
	logger *slog.Logger

	batchSize  int
	timeout    time.Duration
	throttle   time.Duration
	onDispatch func(Dispatch)
	onError    func(*RuntimeError)

	mu        sync.Mutex
	callbacks map[kernel.ID]Callback
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithBatchSize sets the max events per pass in Run. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithWaitTimeout sets the timeout of each wait in Run.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Reactor) {
		r.timeout = d
	}
}

// WithThrottle sets the pause after each callback. Zero disables it.
func WithThrottle(d time.Duration) Option {
	return func(r *Reactor) {
		if d >= 0 {
			r.throttle = d
		}
	}
}

// WithLogger sets the loop's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the dispatch clock.
func WithClock(c *Clock) Option {
	return func(r *Reactor) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithDispatchHook registers fn to be called before each callback runs.
func WithDispatchHook(fn func(Dispatch)) Option {
	return func(r *Reactor) {
		r.onDispatch = fn
	}
}

// WithErrorHook registers fn to be called for each runtime error, after it
// is logged.
func WithErrorHook(fn func(*RuntimeError)) Option {
	return func(r *Reactor) {
		r.onError = fn
	}
}

// New creates a reactor on top of p.
func New(p *poller.PersistentPoller, opts ...Option) *Reactor {
	r := &Reactor{
		poller:    p,
		clock:     NewClock(),
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		timeout:   DefaultWaitTimeout,
		throttle:  DefaultThrottle,
		callbacks: make(map[kernel.ID]Callback),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds read interest for id and stores cb as its callback,
// replacing any previous one.
func (r *Reactor) Register(id kernel.ID, cb Callback) {
	r.poller.AddInterest(id, kernel.EventRead)

	r.mu.Lock()
	r.callbacks[id] = cb
	r.mu.Unlock()

	r.logger.Debug("callback registered", "id", id)
}

// Callback returns the callback registered for id.
func (r *Reactor) Callback(id kernel.ID) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.callbacks[id]
	return cb, ok
}

// Poller returns the underlying poller.
func (r *Reactor) Poller() *poller.PersistentPoller {
	return r.poller
}

// Clock returns the dispatch clock.
func (r *Reactor) Clock() *Clock {
	return r.clock
}

// RunOnce performs a single wait of up to maxEvents events and dispatches
// each drained event in order. It returns the number of events drained.
//
// A timeout is not an error: RunOnce returns 0, nil.
func (r *Reactor) RunOnce(maxEvents int, timeout time.Duration) (int, error) {
	events, err := r.poller.Wait(maxEvents, timeout)
	if err != nil {
		return 0, err
	}
	for i, ev := range events {
		r.dispatch(ev)
		if r.throttle > 0 && i < len(events)-1 {
			time.Sleep(r.throttle)
		}
	}
	return len(events), nil
}

// Run waits and dispatches until ctx is cancelled.
//
// ctx is checked between passes only. A wait in progress runs to its
// timeout or to the next readiness event.
func (r *Reactor) Run(ctx context.Context) error {
	r.logger.Info("reactor starting",
		"batch_size", r.batchSize,
		"wait_timeout", r.timeout,
	)

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("reactor stopping: context cancelled", "dispatched", r.clock.Current())
			return err
		}
		n, err := r.RunOnce(r.batchSize, r.timeout)
		if err != nil {
			return err
		}
		if n > 0 && r.throttle > 0 {
			time.Sleep(r.throttle)
		}
	}
}

// RunForever runs the loop until the process exits.
func (r *Reactor) RunForever() {
	_ = r.Run(context.Background())
}

// dispatch invokes the callback for ev.
// CRITICAL: called only from the loop goroutine.
func (r *Reactor) dispatch(ev poller.Event) {
	cb, ok := r.Callback(ev.ID)
	if !ok {
		r.fail(NewNoCallbackError(ev.ID, ev.Mask), slog.LevelWarn)
		return
	}

	d := Dispatch{Seq: r.clock.Next(), ID: ev.ID, Mask: ev.Mask}
	r.logger.Debug("dispatching", "seq", d.Seq, "id", d.ID, "mask", d.Mask)
	if r.onDispatch != nil {
		r.onDispatch(d)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(NewCallbackPanicError(ev.ID, rec), slog.LevelError)
		}
	}()
	cb(ev.ID)
}

func (r *Reactor) fail(err *RuntimeError, level slog.Level) {
	r.logger.Log(context.Background(), level, "dispatch failed",
		"code", err.Code,
		"id", err.EndpointID,
		"error", err.Error(),
	)
	if r.onError != nil {
		r.onError(err)
	}
}
