// Package demo holds the narrative scenarios that show the pollers and the
// reactor at work: a single select, multi-client fan-in, an echo server, and
// nested callback chains with and without error handling.
//
// Every demo writes a human-readable transcript to an io.Writer.
package demo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
	"github.com/roach88/pollsim/internal/reactor"
)

// ErrUnknownDemo is returned by Run for a name not in Names().
var ErrUnknownDemo = errors.New("unknown demo")

// Options tunes a demo run.
type Options struct {
	// Delay scales simulated network latency. Zero uses one second.
	Delay time.Duration
	// Seed drives random latencies in the fan-in demo.
	Seed uint64
	// Logger receives component logs. Nil discards them.
	Logger *slog.Logger
	// Component options, e.g. from configuration.
	Kernel     []kernel.Option
	Level      []poller.LevelOption
	Persistent []poller.PersistentOption
	Reactor    []reactor.Option
}

func (o Options) delay() time.Duration {
	if o.Delay > 0 {
		return o.Delay
	}
	return time.Second
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Func is the signature every demo implements.
type Func func(w io.Writer, opts Options) error

var demos = map[string]Func{
	"select":       Select,
	"fanin":        FanIn,
	"echo":         Echo,
	"chain":        Chain,
	"chain-errors": ChainErrors,
}

// Names returns the demo names in sorted order.
func Names() []string {
	names := make([]string, 0, len(demos))
	for n := range demos {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes the named demo.
func Run(name string, w io.Writer, opts Options) error {
	fn, ok := demos[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDemo, name)
	}
	return fn(w, opts)
}

// loop bundles the pieces every reactor demo needs.
type loop struct {
	reg *kernel.Registry
	r   *reactor.Reactor
}

func newLoop(opts Options) loop {
	logger := opts.logger()
	reg := kernel.NewRegistry(append([]kernel.Option{kernel.WithLogger(logger)}, opts.Kernel...)...)
	p := poller.NewPersistentPoller(reg, append([]poller.PersistentOption{poller.WithPersistentLogger(logger)}, opts.Persistent...)...)
	ropts := append([]reactor.Option{reactor.WithLogger(logger), reactor.WithThrottle(0)}, opts.Reactor...)
	return loop{reg: reg, r: reactor.New(p, ropts...)}
}

// pump drives rounds passes of the reactor by hand, the way the reference
// walkthroughs step the loop.
func (l loop) pump(rounds, maxEvents int, timeout time.Duration) error {
	for i := 0; i < rounds; i++ {
		if _, err := l.r.RunOnce(maxEvents, timeout); err != nil {
			return fmt.Errorf("pass %d: %w", i+1, err)
		}
	}
	return nil
}
