package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/pollsim/internal/canon"
	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
	"github.com/roach88/pollsim/internal/reactor"
	"github.com/roach88/pollsim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Endpoints int
	Interval  time.Duration
	Duration  time.Duration
	Database  string

	// RunID overrides run id generation (for testing).
	// If nil, a UUIDv7 is used.
	RunID func() (string, error)
}

// RunSummary is what the run command reports after shutdown.
type RunSummary struct {
	RunID          string `json:"run_id"`
	Endpoints      int    `json:"endpoints"`
	Delivered      int64  `json:"delivered"`
	Dispatched     int64  `json:"dispatched"`
	Echoed         int    `json:"echoed"`
	Errors         int    `json:"errors"`
	Wakeups        int64  `json:"wakeups"`
	Coalesced      int64  `json:"coalesced"`
	Timeouts       int64  `json:"timeouts"`
	SnapshotDigest string `json:"snapshot_digest"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d endpoints\n", s.RunID, s.Endpoints)
	fmt.Fprintf(&b, "delivered=%d dispatched=%d echoed=%d errors=%d\n", s.Delivered, s.Dispatched, s.Echoed, s.Errors)
	fmt.Fprintf(&b, "wakeups=%d coalesced=%d timeouts=%d\n", s.Wakeups, s.Coalesced, s.Timeouts)
	fmt.Fprintf(&b, "snapshot %s", s.SnapshotDigest)
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a live echo reactor",
		Long: `Start a reactor serving echo callbacks on simulated client endpoints.

A producer delivers one message per interval, round-robin over the
clients. The reactor runs until --duration elapses or SIGINT/SIGTERM, then
prints a summary. Shutdown waits for the wait in progress, which is bounded
by reactor.wait_timeout. With --db the final endpoint and dispatch state is
written to a SQLite database.

Example:
  pollsim run --endpoints 5 --interval 20ms --duration 2s
  pollsim run --db ./run.db --config tuned.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Endpoints, "endpoints", 3, "number of client endpoints")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 100*time.Millisecond, "delay between deliveries")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for the final state")

	return cmd
}

// liveRun is the state of one run command, owned by the reactor goroutine
// except where noted.
type liveRun struct {
	reg        *kernel.Registry
	persistent *poller.PersistentPoller
	reactor    *reactor.Reactor
	logger     *slog.Logger

	ids        []kernel.ID
	names      map[kernel.ID]string
	dispatches []store.DispatchRow
	echoed     int
	errors     int

	delivered atomic.Int64 // producer goroutine
}

func runLive(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Endpoints <= 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("endpoints must be positive, got %d", opts.Endpoints), nil)
	}
	if opts.Interval <= 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("interval must be positive, got %v", opts.Interval), nil)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	runID, err := newRunID(opts.RunID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to generate run id", err)
	}

	logger := opts.logger(cmd.ErrOrStderr()).With("run_id", runID)
	lr := &liveRun{logger: logger, names: make(map[kernel.ID]string)}
	lr.reg = kernel.NewRegistry(append(cfg.KernelOptions(), kernel.WithLogger(logger))...)
	lr.persistent = poller.NewPersistentPoller(lr.reg, append(cfg.PersistentOptions(), poller.WithPersistentLogger(logger))...)
	lr.reactor = reactor.New(lr.persistent, append(cfg.ReactorOptions(),
		reactor.WithLogger(logger),
		reactor.WithDispatchHook(lr.onDispatch),
		reactor.WithErrorHook(lr.onError),
	)...)

	for i := 0; i < opts.Endpoints; i++ {
		id := lr.reg.CreateEndpoint()
		lr.ids = append(lr.ids, id)
		lr.names[id] = fmt.Sprintf("client-%d", i+1)
		lr.reactor.Register(id, lr.echo)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lr.produce(ctx, opts.Interval)
	}()

	logger.Info("reactor starting", "endpoints", opts.Endpoints, "interval", opts.Interval)
	formatter.VerboseLog("run %s started, press Ctrl-C to stop", runID)

	runErr := lr.reactor.Run(ctx)
	cancel()
	wg.Wait()
	if runErr != nil && runErr != context.Canceled && runErr != context.DeadlineExceeded {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "reactor error", runErr)
	}
	logger.Info("reactor stopped gracefully")

	summary, err := lr.summary(runID)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to summarize run", err)
	}

	if opts.Database != "" {
		if err := lr.persist(opts.Database); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to write database", err)
		}
		formatter.VerboseLog("final state written to %s", opts.Database)
	}

	if opts.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{Status: "ok", Data: summary, RunID: runID})
	}
	return formatter.Success(summary)
}

func newRunID(gen func() (string, error)) (string, error) {
	if gen != nil {
		return gen()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// produce delivers one message per interval, round-robin, until ctx is done.
func (lr *liveRun) produce(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		id := lr.ids[i%len(lr.ids)]
		n := lr.delivered.Add(1)
		lr.reg.Deliver(id, []byte(fmt.Sprintf("msg-%d", n)))
	}
}

// echo drains the inbound queue, sends every message back, and flushes.
func (lr *liveRun) echo(id kernel.ID) {
	for {
		data, ok := lr.reg.Recv(id)
		if !ok {
			break
		}
		if err := lr.reg.Send(id, data); err != nil {
			lr.logger.Warn("echo send failed", "endpoint", lr.names[id], "error", err)
		}
	}
	out, err := lr.reg.TakeOutbound(id)
	if err != nil {
		lr.logger.Warn("flush failed", "endpoint", lr.names[id], "error", err)
		return
	}
	lr.echoed += len(out)
}

func (lr *liveRun) onDispatch(d reactor.Dispatch) {
	lr.dispatches = append(lr.dispatches, store.DispatchRow{
		Seq:  d.Seq,
		ID:   d.ID,
		Name: lr.names[d.ID],
		Mask: d.Mask.String(),
	})
}

func (lr *liveRun) onError(*reactor.RuntimeError) {
	lr.errors++
}

func (lr *liveRun) endpointRows() []store.EndpointRow {
	var rows []store.EndpointRow
	for _, st := range lr.reg.Snapshot() {
		interest := ""
		if mask, ok := lr.persistent.Interest(st.ID); ok {
			interest = mask.String()
		}
		rows = append(rows, store.EndpointRow{
			ID:          st.ID,
			Name:        lr.names[st.ID],
			Inbound:     st.Inbound,
			Outbound:    st.Outbound,
			Subscribers: st.Subscribers,
			Interest:    interest,
			Queued:      lr.persistent.Queued(st.ID),
		})
	}
	return rows
}

func (lr *liveRun) summary(runID string) (RunSummary, error) {
	var states []any
	for _, row := range lr.endpointRows() {
		states = append(states, map[string]any{
			"id":          int64(row.ID),
			"name":        row.Name,
			"inbound":     row.Inbound,
			"outbound":    row.Outbound,
			"subscribers": row.Subscribers,
			"interest":    row.Interest,
			"queued":      row.Queued,
		})
	}
	digest, err := canon.Digest(canon.DomainSnapshot, states)
	if err != nil {
		return RunSummary{}, err
	}

	stats := lr.persistent.Stats()
	return RunSummary{
		RunID:          runID,
		Endpoints:      len(lr.ids),
		Delivered:      lr.delivered.Load(),
		Dispatched:     lr.reactor.Clock().Current(),
		Echoed:         lr.echoed,
		Errors:         lr.errors,
		Wakeups:        stats.Wakeups,
		Coalesced:      stats.Coalesced,
		Timeouts:       stats.Timeouts,
		SnapshotDigest: digest,
	}, nil
}

func (lr *liveRun) persist(path string) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			lr.logger.Error("error closing database", "error", closeErr)
		}
	}()

	return st.WriteSnapshot(context.Background(), store.Snapshot{
		Endpoints:  lr.endpointRows(),
		Dispatches: lr.dispatches,
	})
}
