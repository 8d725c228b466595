package demo

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/pollsim/internal/chain"
)

// chainRounds is the number of reactor passes a four-step chain needs:
// every step's endpoint becomes ready only after the previous step ran.
const chainRounds = 4

// Chain handles one request through four nested asynchronous steps.
// Every step succeeds.
func Chain(w io.Writer, opts Options) error {
	l := newLoop(opts)

	client := l.reg.CreateEndpoint()
	fmt.Fprintf(w, "[step 0] request started (id=%d)\n", client)

	chain.AsyncOp(l.reg, l.r, "request read", func(request string) {
		fmt.Fprintf(w, "[step 1] %s\n", request)
		chain.AsyncOp(l.reg, l.r, "db query", func(rows string) {
			fmt.Fprintf(w, "[step 2] %s\n", rows)
			chain.AsyncOp(l.reg, l.r, "api call", func(body string) {
				fmt.Fprintf(w, "[step 3] %s\n", body)
				chain.AsyncOp(l.reg, l.r, "response send", func(sent string) {
					fmt.Fprintf(w, "[step 4] %s\n", sent)
					fmt.Fprintln(w, ">>> request complete")
				})
			})
		})
	})

	return l.pump(chainRounds, 10, time.Second)
}

// ChainErrors runs the error-aware version twice: once with every step
// succeeding and once with the database step failing.
func ChainErrors(w io.Writer, opts Options) error {
	l := newLoop(opts)

	fmt.Fprintln(w, "--- case 1: every step succeeds ---")
	handleWithErrors(w, l, 0)
	if err := l.pump(chainRounds, 10, time.Second); err != nil {
		return err
	}

	fmt.Fprintln(w, "--- case 2: db query fails ---")
	handleWithErrors(w, l, 2)
	return l.pump(chainRounds, 10, 100*time.Millisecond)
}

// handleWithErrors nests four error-aware steps. Every continuation checks
// err first; the first failure goes to onError and the chain stops there.
func handleWithErrors(w io.Writer, l loop, failAt int) {
	client := l.reg.CreateEndpoint()
	fmt.Fprintf(w, "[step 0] request started (id=%d)\n", client)

	onError := func(err error) {
		fmt.Fprintf(w, "!!! error: %v\n", err)
		fmt.Fprintln(w, ">>> request failed")
	}

	chain.AsyncOpWithError(l.reg, l.r, "request read", failAt == 1, func(request string, err error) {
		if err != nil {
			onError(err)
			return
		}
		fmt.Fprintf(w, "[step 1] %s\n", request)
		chain.AsyncOpWithError(l.reg, l.r, "db query", failAt == 2, func(rows string, err error) {
			if err != nil {
				onError(err)
				return
			}
			fmt.Fprintf(w, "[step 2] %s\n", rows)
			chain.AsyncOpWithError(l.reg, l.r, "api call", failAt == 3, func(body string, err error) {
				if err != nil {
					onError(err)
					return
				}
				fmt.Fprintf(w, "[step 3] %s\n", body)
				chain.AsyncOpWithError(l.reg, l.r, "response send", failAt == 4, func(sent string, err error) {
					if err != nil {
						onError(err)
						return
					}
					fmt.Fprintf(w, "[step 4] %s\n", sent)
					fmt.Fprintln(w, ">>> request complete")
				})
			})
		})
	})
}
