package reactor

import (
	"errors"
	"fmt"

	"github.com/roach88/pollsim/internal/kernel"
)

// RuntimeError describes a problem the loop hit while dispatching.
// The loop logs it and moves on to the next event.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// EndpointID is the endpoint whose event was being dispatched.
	EndpointID kernel.ID

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNoCallback indicates a drained event had no registered callback.
	ErrCodeNoCallback RuntimeErrorCode = "NO_CALLBACK"

	// ErrCodeCallbackPanic indicates a callback panicked and was recovered.
	ErrCodeCallbackPanic RuntimeErrorCode = "CALLBACK_PANIC"
)

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (endpoint=%d)", e.Code, e.Message, e.EndpointID)
}

// IsNoCallback reports whether err is a missing-callback error.
func IsNoCallback(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNoCallback
	}
	return false
}

// IsCallbackPanic reports whether err is a recovered callback panic.
func IsCallbackPanic(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCallbackPanic
	}
	return false
}

// NewNoCallbackError creates a RuntimeError for an event with no callback.
func NewNoCallbackError(id kernel.ID, mask kernel.EventMask) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeNoCallback,
		Message:    "no callback registered for ready endpoint",
		EndpointID: id,
		Details: map[string]string{
			"mask": mask.String(),
		},
	}
}

// NewCallbackPanicError creates a RuntimeError for a recovered panic.
func NewCallbackPanicError(id kernel.ID, recovered any) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeCallbackPanic,
		Message:    fmt.Sprintf("callback panicked: %v", recovered),
		EndpointID: id,
		Details: map[string]string{
			"panic": fmt.Sprint(recovered),
		},
	}
}
