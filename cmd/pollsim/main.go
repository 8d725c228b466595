// Command pollsim runs the readiness polling simulator.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pollsim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
