package poller

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/pollsim/internal/kernel"
)

// DefaultLevelQuantum is the sleep between rescans of the interest sets.
const DefaultLevelQuantum = 10 * time.Millisecond

// ReadinessSource is the part of the kernel registry a poller needs to
// examine raw readiness state.
type ReadinessSource interface {
	Query(id kernel.ID, kind kernel.Kind) bool
}

// LevelStats counts the work a LevelPoller has done.
type LevelStats struct {
	// Syscalls is the number of Wait calls.
	Syscalls int64
	// Scans is the number of full passes over the interest sets.
	Scans int64
	// Checks is the number of individual readiness checks.
	Checks int64
	// Timeouts is the number of Wait calls that returned on timeout.
	Timeouts int64
}

// LevelPoller is a stateless select-style poller: nothing is remembered
// between calls.
type LevelPoller struct {
	src     ReadinessSource
	quantum time.Duration
	logger  *slog.Logger

	syscalls atomic.Int64
	scans    atomic.Int64
	checks   atomic.Int64
	timeouts atomic.Int64
}

// LevelOption configures a LevelPoller.
type LevelOption func(*LevelPoller)

// WithLevelQuantum sets the sleep between rescans. Non-positive values are ignored.
func WithLevelQuantum(d time.Duration) LevelOption {
	return func(p *LevelPoller) {
		if d > 0 {
			p.quantum = d
		}
	}
}

// WithLevelLogger sets the logger for timeout notices.
func WithLevelLogger(l *slog.Logger) LevelOption {
	return func(p *LevelPoller) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewLevelPoller creates a level-triggered poller over src.
func NewLevelPoller(src ReadinessSource, opts ...LevelOption) *LevelPoller {
	p := &LevelPoller{
		src:     src,
		quantum: DefaultLevelQuantum,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait rescans readIDs and writeIDs until at least one endpoint is ready or
// timeout elapses.
//
// Ready ids are returned in input order. On timeout both slices may be empty
// and an informational notice is logged. A zero timeout scans once; a
// negative timeout (Forever) waits until something is ready.
func (p *LevelPoller) Wait(readIDs, writeIDs []kernel.ID, timeout time.Duration) (readyRead, readyWrite []kernel.ID) {
	p.syscalls.Add(1)
	start := time.Now()

	scan := func() bool {
		p.scans.Add(1)
		readyRead = collect(p.src, readIDs, kernel.KindRead, &p.checks)
		readyWrite = collect(p.src, writeIDs, kernel.KindWrite, &p.checks)
		return len(readyRead) > 0 || len(readyWrite) > 0
	}

	if !blockUntil(nil, p.quantum, timeout, scan) {
		p.timeouts.Add(1)
		p.logger.Info("timeout occurred",
			"poller", "level",
			"timeout", timeout,
			"elapsed", time.Since(start),
			"interest", len(readIDs)+len(writeIDs),
		)
	}
	return readyRead, readyWrite
}

// Stats returns a snapshot of the poller's counters.
func (p *LevelPoller) Stats() LevelStats {
	return LevelStats{
		Syscalls: p.syscalls.Load(),
		Scans:    p.scans.Load(),
		Checks:   p.checks.Load(),
		Timeouts: p.timeouts.Load(),
	}
}

// ResetStats zeroes the counters.
func (p *LevelPoller) ResetStats() {
	p.syscalls.Store(0)
	p.scans.Store(0)
	p.checks.Store(0)
	p.timeouts.Store(0)
}

func collect(src ReadinessSource, ids []kernel.ID, kind kernel.Kind, checks *atomic.Int64) []kernel.ID {
	var ready []kernel.ID
	for _, id := range ids {
		checks.Add(1)
		if src.Query(id, kind) {
			ready = append(ready, id)
		}
	}
	return ready
}
