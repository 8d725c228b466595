package kernel

import (
	"bytes"
	"sync"

	"github.com/eapache/queue"
)

// DefaultOutboundCapacity bounds each endpoint's outbound queue.
const DefaultOutboundCapacity = 10

// Subscriber is notified synchronously when an endpoint becomes ready.
// The registry passes the endpoint id and the readiness kind ("read").
type Subscriber func(id ID, kind Kind)

// endpoint is the registry's record for one simulated socket.
// All fields are guarded by mu.
type endpoint struct {
	mu          sync.Mutex
	id          ID
	inbound     *queue.Queue // FIFO of []byte, unbounded
	outbound    [][]byte
	outboundCap int
	subscribers []Subscriber
}

func newEndpoint(id ID, outboundCap int) *endpoint {
	return &endpoint{
		id:          id,
		inbound:     queue.New(),
		outboundCap: outboundCap,
	}
}

// push appends data to the inbound queue and returns a snapshot of the
// subscriber list to notify after the lock is released.
func (e *endpoint) push(data []byte) []Subscriber {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inbound.Add(bytes.Clone(data))

	if len(e.subscribers) == 0 {
		return nil
	}
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	return subs
}

func (e *endpoint) pop() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inbound.Length() == 0 {
		return nil, false
	}
	return e.inbound.Remove().([]byte), true
}

func (e *endpoint) readable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inbound.Length() > 0
}

func (e *endpoint) writable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outbound) < e.outboundCap
}

func (e *endpoint) send(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.outbound) >= e.outboundCap {
		return ErrWouldBlock
	}
	e.outbound = append(e.outbound, bytes.Clone(data))
	return nil
}

func (e *endpoint) takeOutbound() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.outbound
	e.outbound = nil
	return out
}

func (e *endpoint) subscribe(s Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, s)
}

func (e *endpoint) state() EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointState{
		ID:          e.id,
		Inbound:     e.inbound.Length(),
		Outbound:    len(e.outbound),
		Subscribers: len(e.subscribers),
	}
}

// EndpointState is a point-in-time view of an endpoint's buffers.
type EndpointState struct {
	ID          ID
	Inbound     int
	Outbound    int
	Subscribers int
}
