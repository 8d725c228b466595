package chain

import (
	"sync/atomic"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/reactor"
)

// Endpoints creates simulated endpoints and delivers data to them.
// *kernel.Registry satisfies it.
type Endpoints interface {
	CreateEndpoint() kernel.ID
	Deliver(id kernel.ID, data []byte)
}

// Scheduler binds a callback to an endpoint. *reactor.Reactor satisfies it.
type Scheduler interface {
	Register(id kernel.ID, cb reactor.Callback)
}

// payload is what every asynchronous operation's endpoint receives.
var payload = []byte("data")

// Result returns the text an operation named name completes with.
func Result(name string) string {
	return name + " result"
}

// AsyncOp starts an operation that always succeeds. It creates a fresh
// endpoint, registers a one-shot callback for it, and delivers data so the
// callback fires on a later reactor pass. cont receives Result(name).
//
// The returned id is the operation's endpoint.
func AsyncOp(eps Endpoints, sched Scheduler, name string, cont func(result string)) kernel.ID {
	return start(eps, sched, func() {
		cont(Result(name))
	})
}

// AsyncOpWithError is AsyncOp with an injected failure. When fail is true
// cont receives an empty result and a *StepError for name; otherwise it
// receives Result(name) and a nil error.
func AsyncOpWithError(eps Endpoints, sched Scheduler, name string, fail bool, cont func(result string, err error)) kernel.ID {
	return start(eps, sched, func() {
		if fail {
			cont("", &StepError{Step: name})
			return
		}
		cont(Result(name), nil)
	})
}

// start wires fire to a new endpoint. fire runs at most once, however many
// times the endpoint becomes ready.
func start(eps Endpoints, sched Scheduler, fire func()) kernel.ID {
	id := eps.CreateEndpoint()

	var done atomic.Bool
	sched.Register(id, func(kernel.ID) {
		if done.Swap(true) {
			return
		}
		fire()
	})
	eps.Deliver(id, payload)
	return id
}
