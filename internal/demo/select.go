package demo

import (
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
)

// Select blocks a level-triggered wait on two endpoints until a producer
// goroutine delivers to one of them.
func Select(w io.Writer, opts Options) error {
	logger := opts.logger()
	reg := kernel.NewRegistry(append([]kernel.Option{kernel.WithLogger(logger)}, opts.Kernel...)...)
	p := poller.NewLevelPoller(reg, append([]poller.LevelOption{poller.WithLevelLogger(logger)}, opts.Level...)...)

	client := reg.CreateEndpoint()
	server := reg.CreateEndpoint()
	fmt.Fprintf(w, "endpoints created: client=%d server=%d\n", client, server)

	delay := opts.delay()
	go func() {
		time.Sleep(delay)
		reg.Deliver(client, []byte("Hello from network"))
	}()

	fmt.Fprintln(w, "select: waiting for data...")
	ready, _ := p.Wait([]kernel.ID{client, server}, nil, 5*delay)
	fmt.Fprintf(w, "select returned: ready_read=%v\n", ready)
	fmt.Fprintf(w, "syscalls: %d\n", p.Stats().Syscalls)

	if slices.Contains(ready, client) {
		data, _ := reg.Recv(client)
		fmt.Fprintf(w, "received: %s\n", data)
	}
	return nil
}

// FanIn waits on five clients whose replies arrive after random delays and
// serves each one as soon as it is ready, in arrival order.
func FanIn(w io.Writer, opts Options) error {
	logger := opts.logger()
	reg := kernel.NewRegistry(append([]kernel.Option{kernel.WithLogger(logger)}, opts.Kernel...)...)
	p := poller.NewLevelPoller(reg, append([]poller.LevelOption{poller.WithLevelLogger(logger)}, opts.Level...)...)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	const clients = 5
	names := make(map[kernel.ID]string, clients)
	pending := make([]kernel.ID, 0, clients)
	for i := 0; i < clients; i++ {
		id := reg.CreateEndpoint()
		names[id] = fmt.Sprintf("Client-%d", i+1)
		pending = append(pending, id)
		fmt.Fprintf(w, "%s connected (id=%d)\n", names[id], id)
	}

	// Latency is uniform in [0.15, 1.0) of the configured delay.
	scale := opts.delay()
	for _, id := range pending {
		d := time.Duration((0.15 + 0.85*rng.Float64()) * float64(scale))
		go func(id kernel.ID, name string, d time.Duration) {
			time.Sleep(d)
			reg.Deliver(id, []byte(fmt.Sprintf("reply from %s", name)))
		}(id, names[id], d)
	}

	start := time.Now()
	for len(pending) > 0 {
		ready, _ := p.Wait(pending, nil, 5*scale)
		if len(ready) == 0 {
			return fmt.Errorf("fan-in: %d clients never replied", len(pending))
		}
		for _, id := range ready {
			data, _ := reg.Recv(id)
			fmt.Fprintf(w, "[%s] received: %s\n", time.Since(start).Round(time.Millisecond), data)
			pending = slices.DeleteFunc(pending, func(x kernel.ID) bool { return x == id })
		}
	}

	fmt.Fprintf(w, "all %d clients served in %s (syscalls=%d)\n",
		clients, time.Since(start).Round(time.Millisecond), p.Stats().Syscalls)
	return nil
}
