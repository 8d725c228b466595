package kernel

import "errors"

var (
	// ErrUnknownEndpoint is returned by operations that need an existing endpoint.
	// Deliver and Query never return it: unknown ids are ignored there.
	ErrUnknownEndpoint = errors.New("kernel: unknown endpoint")

	// ErrWouldBlock is returned by Send when the outbound queue is full.
	ErrWouldBlock = errors.New("kernel: outbound queue full")
)
