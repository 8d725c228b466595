// Package config loads simulation settings from CUE.
//
// The schema (schema.cue) is embedded. A user file is unified with it, so
// any field the file omits takes the schema default and any field the schema
// does not declare is rejected.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
	"github.com/roach88/pollsim/internal/reactor"
)

//go:embed schema.cue
var schemaSource string

// Error reports a configuration problem. Path is the file, empty for the
// built-in defaults.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return "config: " + e.Message
}

// Config holds every tunable of the simulation.
type Config struct {
	Kernel     KernelConfig
	Level      LevelConfig
	Persistent PersistentConfig
	Reactor    ReactorConfig
}

// KernelConfig tunes the endpoint registry.
type KernelConfig struct {
	FirstID          kernel.ID
	OutboundCapacity int
}

// LevelConfig tunes the level-triggered poller.
type LevelConfig struct {
	Quantum time.Duration
}

// PersistentConfig tunes the persistent-interest poller.
type PersistentConfig struct {
	IdempotentInterest bool
}

// ReactorConfig tunes the reactor loop.
type ReactorConfig struct {
	BatchSize   int
	WaitTimeout time.Duration
	Throttle    time.Duration
}

// raw mirrors the schema; cue decodes through json tags.
type raw struct {
	Kernel struct {
		FirstID          int64 `json:"first_id"`
		OutboundCapacity int   `json:"outbound_capacity"`
	} `json:"kernel"`
	Level struct {
		Quantum string `json:"quantum"`
	} `json:"level"`
	Persistent struct {
		IdempotentInterest bool `json:"idempotent_interest"`
	} `json:"persistent"`
	Reactor struct {
		BatchSize   int    `json:"batch_size"`
		WaitTimeout string `json:"wait_timeout"`
		Throttle    string `json:"throttle"`
	} `json:"reactor"`
}

// Default returns the schema defaults.
func Default() (*Config, error) {
	return build("", nil)
}

// Load reads a CUE file and unifies it with the schema.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	return build(path, data)
}

// Parse unifies CUE source with the schema. name is used in errors.
func Parse(name string, src []byte) (*Config, error) {
	return build(name, src)
}

func build(path string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &Error{Message: fmt.Sprintf("schema: %v", err)}
	}
	value := schema.LookupPath(cue.ParsePath("#Config"))

	if src != nil {
		user := ctx.CompileBytes(src, cue.Filename(path))
		if err := user.Err(); err != nil {
			return nil, &Error{Path: path, Message: err.Error()}
		}
		value = value.Unify(user)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}

	var r raw
	if err := value.Decode(&r); err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	cfg, err := r.convert()
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	return cfg, nil
}

func (r raw) convert() (*Config, error) {
	quantum, err := parseDuration("level.quantum", r.Level.Quantum)
	if err != nil {
		return nil, err
	}
	if quantum <= 0 {
		return nil, fmt.Errorf("level.quantum must be positive, got %s", quantum)
	}
	timeout, err := parseDuration("reactor.wait_timeout", r.Reactor.WaitTimeout)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("reactor.wait_timeout must be positive, got %s", timeout)
	}
	throttle, err := parseDuration("reactor.throttle", r.Reactor.Throttle)
	if err != nil {
		return nil, err
	}
	if throttle < 0 {
		return nil, fmt.Errorf("reactor.throttle must not be negative, got %s", throttle)
	}

	return &Config{
		Kernel: KernelConfig{
			FirstID:          kernel.ID(r.Kernel.FirstID),
			OutboundCapacity: r.Kernel.OutboundCapacity,
		},
		Level:      LevelConfig{Quantum: quantum},
		Persistent: PersistentConfig{IdempotentInterest: r.Persistent.IdempotentInterest},
		Reactor: ReactorConfig{
			BatchSize:   r.Reactor.BatchSize,
			WaitTimeout: timeout,
			Throttle:    throttle,
		},
	}, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// KernelOptions returns registry options for c.
func (c *Config) KernelOptions() []kernel.Option {
	return []kernel.Option{
		kernel.WithFirstID(c.Kernel.FirstID),
		kernel.WithOutboundCapacity(c.Kernel.OutboundCapacity),
	}
}

// LevelOptions returns level poller options for c.
func (c *Config) LevelOptions() []poller.LevelOption {
	return []poller.LevelOption{poller.WithLevelQuantum(c.Level.Quantum)}
}

// PersistentOptions returns persistent poller options for c.
func (c *Config) PersistentOptions() []poller.PersistentOption {
	return []poller.PersistentOption{poller.WithIdempotentInterest(c.Persistent.IdempotentInterest)}
}

// ReactorOptions returns reactor options for c.
func (c *Config) ReactorOptions() []reactor.Option {
	return []reactor.Option{
		reactor.WithBatchSize(c.Reactor.BatchSize),
		reactor.WithWaitTimeout(c.Reactor.WaitTimeout),
		reactor.WithThrottle(c.Reactor.Throttle),
	}
}
