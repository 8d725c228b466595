// Package bench compares the cost of the level-triggered and the
// persistent-interest pollers over the same endpoint population.
package bench

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
)

// Config describes one benchmark run.
type Config struct {
	// Endpoints is the size of the interest set.
	Endpoints int
	// Ready is the number of endpoints made ready before each wait.
	Ready int
	// Iterations is the number of wait calls measured.
	Iterations int
	// Timeout is passed to every wait.
	Timeout time.Duration
	// Seed makes the choice of ready endpoints reproducible.
	Seed uint64
	// Logger receives the pollers' records. Nil discards them.
	Logger *slog.Logger
	// Kernel, Level and Persistent carry component options from configuration.
	Kernel     []kernel.Option
	Level      []poller.LevelOption
	Persistent []poller.PersistentOption
}

// DefaultConfig returns 2000 endpoints, 100 ready, 10 iterations.
func DefaultConfig() Config {
	return Config{
		Endpoints:  2000,
		Ready:      100,
		Iterations: 10,
		Timeout:    time.Millisecond,
		Seed:       1,
	}
}

func (c Config) validate() error {
	switch {
	case c.Endpoints <= 0:
		return fmt.Errorf("endpoints must be positive, got %d", c.Endpoints)
	case c.Ready < 0 || c.Ready > c.Endpoints:
		return fmt.Errorf("ready must be between 0 and %d, got %d", c.Endpoints, c.Ready)
	case c.Iterations <= 0:
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c Config) registry() *kernel.Registry {
	return kernel.NewRegistry(append([]kernel.Option{kernel.WithLogger(c.logger())}, c.Kernel...)...)
}

// LevelReport is the outcome of the level-triggered benchmark.
type LevelReport struct {
	Endpoints  int           `json:"endpoints"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Syscalls   int64         `json:"syscalls"`
	Checks     int64         `json:"checks"`
	Returned   int           `json:"returned"`
}

// PersistentReport is the outcome of the persistent-interest benchmark.
type PersistentReport struct {
	Endpoints    int           `json:"endpoints"`
	Iterations   int           `json:"iterations"`
	RegisterTime time.Duration `json:"register_ns"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Syscalls     int64         `json:"syscalls"`
	Returned     int           `json:"returned"`
}

// Level delivers to cfg.Ready random endpoints once, then times
// cfg.Iterations waits that each pass the whole interest set.
func Level(cfg Config) (LevelReport, error) {
	if err := cfg.validate(); err != nil {
		return LevelReport{}, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	reg := cfg.registry()
	ids := createEndpoints(reg, cfg.Endpoints)
	for _, i := range rng.Perm(len(ids))[:cfg.Ready] {
		reg.Deliver(ids[i], payload)
	}

	p := poller.NewLevelPoller(reg, append([]poller.LevelOption{poller.WithLevelLogger(cfg.logger())}, cfg.Level...)...)
	returned := 0

	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		ready, _ := p.Wait(ids, nil, cfg.Timeout)
		returned += len(ready)
	}
	elapsed := time.Since(start)

	stats := p.Stats()
	return LevelReport{
		Endpoints:  cfg.Endpoints,
		Iterations: cfg.Iterations,
		Elapsed:    elapsed,
		Syscalls:   stats.Syscalls,
		Checks:     stats.Checks,
		Returned:   returned,
	}, nil
}

// Persistent registers every endpoint once, then times cfg.Iterations
// rounds of marking cfg.Ready random endpoints ready and waiting.
func Persistent(cfg Config) (PersistentReport, error) {
	if err := cfg.validate(); err != nil {
		return PersistentReport{}, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	reg := cfg.registry()
	ids := createEndpoints(reg, cfg.Endpoints)
	p := poller.NewPersistentPoller(reg, append([]poller.PersistentOption{poller.WithPersistentLogger(cfg.logger())}, cfg.Persistent...)...)

	regStart := time.Now()
	for _, id := range ids {
		p.AddInterest(id, kernel.EventRead)
	}
	registerTime := time.Since(regStart)

	maxEvents := max(cfg.Ready, 1)
	returned := 0

	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		for _, j := range rng.Perm(len(ids))[:cfg.Ready] {
			p.Inject(poller.Event{ID: ids[j], Mask: kernel.EventRead})
		}
		events, err := p.Wait(maxEvents, cfg.Timeout)
		if err != nil {
			return PersistentReport{}, fmt.Errorf("wait %d: %w", i, err)
		}
		returned += len(events)
	}
	elapsed := time.Since(start)

	return PersistentReport{
		Endpoints:    cfg.Endpoints,
		Iterations:   cfg.Iterations,
		RegisterTime: registerTime,
		Elapsed:      elapsed,
		Syscalls:     p.Stats().Syscalls,
		Returned:     returned,
	}, nil
}

var payload = []byte("data")

func createEndpoints(reg *kernel.Registry, n int) []kernel.ID {
	ids := make([]kernel.ID, n)
	for i := range ids {
		ids[i] = reg.CreateEndpoint()
	}
	return ids
}
