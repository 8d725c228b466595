package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrStepFailed matches every StepError via errors.Is.
	ErrStepFailed = errors.New("step failed")

	// ErrNoSteps is returned by Start for a chain without steps.
	ErrNoSteps = errors.New("chain has no steps")

	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("chain already running")

	// ErrFinished is returned by Start once a run has ended. Call Reset first.
	ErrFinished = errors.New("chain finished, reset before starting again")
)

// StepError reports the failure of one asynchronous step.
type StepError struct {
	// Chain is the chain name, empty for a standalone AsyncOpWithError.
	Chain string

	// Step is the operation name.
	Step string

	// Index is the 1-based position of the step in its chain, 0 if standalone.
	Index int
}

func (e *StepError) Error() string {
	if e.Chain != "" {
		return fmt.Sprintf("chain %s: step %d (%s) failed", e.Chain, e.Index, e.Step)
	}
	return e.Step + " failed"
}

// Is reports whether target is ErrStepFailed.
func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}
