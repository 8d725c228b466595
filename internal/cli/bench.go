package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pollsim/internal/bench"
)

// BenchOptions holds flags for the bench command.
type BenchOptions struct {
	*RootOptions
	Config bench.Config
}

// BenchResult pairs the two reports of one run.
type BenchResult struct {
	Level      bench.LevelReport      `json:"level"`
	Persistent bench.PersistentReport `json:"persistent"`
}

func (r BenchResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d endpoints, %d iterations\n", r.Level.Endpoints, r.Level.Iterations)
	fmt.Fprintf(&b, "level:      %-12v syscalls=%d checks=%d returned=%d\n",
		r.Level.Elapsed, r.Level.Syscalls, r.Level.Checks, r.Level.Returned)
	fmt.Fprintf(&b, "persistent: %-12v syscalls=%d returned=%d (register %v)",
		r.Persistent.Elapsed, r.Persistent.Syscalls, r.Persistent.Returned, r.Persistent.RegisterTime)
	if r.Persistent.Elapsed > 0 {
		fmt.Fprintf(&b, "\nspeedup:    %.1fx", float64(r.Level.Elapsed)/float64(r.Persistent.Elapsed))
	}
	return b.String()
}

// NewBenchCommand creates the bench command.
func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts, Config: bench.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare level-triggered and persistent-interest polling",
		Long: `Time both pollers over the same endpoint population.

The level-triggered poller scans the whole interest set on every wait. The
persistent poller registers once and only drains what became ready.

Example:
  pollsim bench --endpoints 5000 --ready 50 --iterations 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Config.Endpoints, "endpoints", opts.Config.Endpoints, "size of the interest set")
	cmd.Flags().IntVar(&opts.Config.Ready, "ready", opts.Config.Ready, "endpoints made ready per wait")
	cmd.Flags().IntVar(&opts.Config.Iterations, "iterations", opts.Config.Iterations, "measured wait calls")
	cmd.Flags().DurationVar(&opts.Config.Timeout, "timeout", opts.Config.Timeout, "timeout passed to every wait")
	cmd.Flags().Uint64Var(&opts.Config.Seed, "seed", opts.Config.Seed, "seed for choosing ready endpoints")

	return cmd
}

func runBench(opts *BenchOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	c, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	cfg := opts.Config
	cfg.Kernel = c.KernelOptions()
	cfg.Level = c.LevelOptions()
	cfg.Persistent = c.PersistentOptions()
	if opts.Verbose {
		cfg.Logger = opts.logger(cmd.ErrOrStderr())
	}

	result, err := runBenchPair(cfg, formatter.VerboseLog)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBench, "benchmark failed", err)
	}
	return formatter.Success(result)
}

func runBenchPair(cfg bench.Config, logf func(string, ...any)) (BenchResult, error) {
	start := time.Now()
	level, err := bench.Level(cfg)
	if err != nil {
		return BenchResult{}, fmt.Errorf("level: %w", err)
	}
	logf("level poller done in %v", time.Since(start))

	start = time.Now()
	persistent, err := bench.Persistent(cfg)
	if err != nil {
		return BenchResult{}, fmt.Errorf("persistent: %w", err)
	}
	logf("persistent poller done in %v", time.Since(start))

	return BenchResult{Level: level, Persistent: persistent}, nil
}
