package demo

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
)

// Echo registers three clients on the reactor, delivers one message to
// each, and drains them in a single pass. Each callback reads the message
// and queues it back on the endpoint's outbound side.
func Echo(w io.Writer, opts Options) error {
	l := newLoop(opts)

	clients := []kernel.ID{l.reg.CreateEndpoint(), l.reg.CreateEndpoint(), l.reg.CreateEndpoint()}
	fmt.Fprintf(w, "clients created: %v\n", clients)

	var sendErr error
	echo := func(id kernel.ID) {
		data, ok := l.reg.Recv(id)
		if !ok {
			return
		}
		fmt.Fprintf(w, "[id=%d] received %q\n", id, data)
		if err := l.reg.Send(id, data); err != nil {
			sendErr = err
			return
		}
		fmt.Fprintf(w, "[id=%d] echoed %q\n", id, data)
	}
	for _, id := range clients {
		l.r.Register(id, echo)
	}
	fmt.Fprintln(w, "all clients registered")

	for i, id := range clients {
		l.reg.Deliver(id, []byte(fmt.Sprintf("Hello from client %d", i+1)))
	}

	n, err := l.r.RunOnce(len(clients), time.Second)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "events handled: %d\n", n)
	return sendErr
}
