package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pollsim/internal/demo"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Delay time.Duration
	Seed  uint64
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo [name]",
		Short: "Run a narrated demo",
		Long: fmt.Sprintf(`Run one of the narrated demos and print its transcript.

Without a name, the available demos are listed.

Demos: %s

Example:
  pollsim demo echo --delay 50ms`, strings.Join(demo.Names(), ", ")),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listDemos(opts, cmd)
			}
			return runDemo(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Delay, "delay", 100*time.Millisecond, "simulated network latency unit")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "seed for random latencies")

	return cmd
}

func listDemos(opts *DemoOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Format == "json" {
		return formatter.Success(map[string][]string{"demos": demo.Names()})
	}
	return formatter.Success(strings.Join(demo.Names(), "\n"))
}

func runDemo(opts *DemoOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	demoOpts := demo.Options{
		Delay:      opts.Delay,
		Seed:       opts.Seed,
		Kernel:     cfg.KernelOptions(),
		Level:      cfg.LevelOptions(),
		Persistent: cfg.PersistentOptions(),
		Reactor:    cfg.ReactorOptions(),
	}
	if opts.Verbose {
		demoOpts.Logger = opts.logger(cmd.ErrOrStderr())
	}

	// The transcript is the output; JSON mode wraps it once it is complete.
	var transcript strings.Builder
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		w = &transcript
	}

	if err := demo.Run(name, w, demoOpts); err != nil {
		if errors.Is(err, demo.ErrUnknownDemo) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "unknown demo", err)
		}
		return formatter.Fail(ExitFailure, ErrCodeDemo, "demo failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]string{"demo": name, "transcript": transcript.String()})
	}
	return nil
}
