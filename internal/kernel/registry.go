package kernel

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry owns all simulated endpoints.
//
// Thread-safety model:
//   - CreateEndpoint, Deliver, Query and friends are safe from any goroutine.
//   - Subscribers registered on an endpoint run on the goroutine that called
//     Deliver, in subscription order, before Deliver returns.
//
// INVARIANT: once allocated, an id resolves to exactly one endpoint for the
// lifetime of the Registry. There is no close or remove operation.
type Registry struct {
	mu          sync.RWMutex
	endpoints   map[ID]*endpoint
	ids         *IDAllocator
	outboundCap int
	logger      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithFirstID sets the first id handed out (default FirstID).
func WithFirstID(first ID) Option {
	return func(r *Registry) {
		r.ids = NewIDAllocator(first)
	}
}

// WithOutboundCapacity sets the per-endpoint outbound bound (default 10).
// Values below 1 are ignored.
func WithOutboundCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.outboundCap = n
		}
	}
}

// WithLogger sets the logger used for debug records.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		endpoints:   make(map[ID]*endpoint),
		ids:         NewIDAllocator(FirstID),
		outboundCap: DefaultOutboundCapacity,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateEndpoint allocates the next id and an endpoint with empty buffers
// and no subscribers. It never fails.
func (r *Registry) CreateEndpoint() ID {
	id := r.ids.Next()
	ep := newEndpoint(id, r.outboundCap)

	r.mu.Lock()
	r.endpoints[id] = ep
	r.mu.Unlock()

	r.logger.Debug("endpoint created", "id", id)
	return id
}

// Deliver appends data to the endpoint's inbound queue, then calls every
// subscriber of the endpoint with (id, "read"), in subscription order.
//
// Unknown ids are ignored without error. This keeps the simulation
// permissive, at the cost of hiding deliveries to a wrong id.
func (r *Registry) Deliver(id ID, data []byte) {
	ep := r.lookup(id)
	if ep == nil {
		r.logger.Debug("deliver to unknown endpoint ignored", "id", id)
		return
	}

	subs := ep.push(data)
	r.logger.Debug("data delivered", "id", id, "bytes", len(data), "subscribers", len(subs))

	for _, s := range subs {
		s(id, KindRead)
	}
}

// IsReadable reports whether the inbound queue is non-empty.
// Unknown ids are not readable.
func (r *Registry) IsReadable(id ID) bool {
	ep := r.lookup(id)
	return ep != nil && ep.readable()
}

// IsWritable reports whether the outbound queue has spare capacity.
// Unknown ids are not writable.
func (r *Registry) IsWritable(id ID) bool {
	ep := r.lookup(id)
	return ep != nil && ep.writable()
}

// Query returns the readiness of id for kind. It returns false for unknown
// ids and unknown kinds and never fails.
func (r *Registry) Query(id ID, kind Kind) bool {
	switch kind {
	case KindRead:
		return r.IsReadable(id)
	case KindWrite:
		return r.IsWritable(id)
	default:
		return false
	}
}

// Subscribe appends s to the endpoint's subscriber list.
// It reports false, and does nothing, for an unknown id.
// Subscribing the same logical listener twice attaches it twice.
func (r *Registry) Subscribe(id ID, s Subscriber) bool {
	ep := r.lookup(id)
	if ep == nil {
		return false
	}
	ep.subscribe(s)
	return true
}

// Subscribers returns the length of the endpoint's subscriber list.
func (r *Registry) Subscribers(id ID) int {
	ep := r.lookup(id)
	if ep == nil {
		return 0
	}
	return ep.state().Subscribers
}

// Recv pops the oldest inbound message. ok is false when the endpoint is
// unknown or has nothing to read.
func (r *Registry) Recv(id ID) (data []byte, ok bool) {
	ep := r.lookup(id)
	if ep == nil {
		return nil, false
	}
	return ep.pop()
}

// Send appends data to the outbound queue.
func (r *Registry) Send(id ID, data []byte) error {
	ep := r.lookup(id)
	if ep == nil {
		return fmt.Errorf("send to %d: %w", id, ErrUnknownEndpoint)
	}
	if err := ep.send(data); err != nil {
		return fmt.Errorf("send to %d: %w", id, err)
	}
	return nil
}

// TakeOutbound removes and returns everything queued for sending, which
// makes the endpoint writable again.
func (r *Registry) TakeOutbound(id ID) ([][]byte, error) {
	ep := r.lookup(id)
	if ep == nil {
		return nil, fmt.Errorf("take outbound from %d: %w", id, ErrUnknownEndpoint)
	}
	return ep.takeOutbound(), nil
}

// Exists reports whether id was allocated by this registry.
func (r *Registry) Exists(id ID) bool {
	return r.lookup(id) != nil
}

// Len returns the number of endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Snapshot returns the state of every endpoint, ordered by id.
func (r *Registry) Snapshot() []EndpointState {
	r.mu.RLock()
	eps := make([]*endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		eps = append(eps, ep)
	}
	r.mu.RUnlock()

	states := make([]EndpointState, len(eps))
	for i, ep := range eps {
		states[i] = ep.state()
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

func (r *Registry) lookup(id ID) *endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[id]
}
