// Package kernel simulates the kernel side of I/O readiness.
//
// A Registry owns every simulated endpoint (socket). Each endpoint has an
// unbounded inbound FIFO, a bounded outbound queue and a list of subscribers
// that are called synchronously whenever data arrives.
//
// The Registry is the single source of readiness truth for the pollers in
// package poller:
//
//   - An endpoint is readable iff its inbound queue is non-empty.
//   - An endpoint is writable iff its outbound queue holds fewer than the
//     configured capacity (10 by default).
//
// Endpoint ids start at 3 (0, 1 and 2 are reserved for standard
// input/output/error), increase strictly and are never reused.
//
// # Concurrency
//
// Deliver models a network interrupt and may be called from any goroutine
// while a poller is waiting on another goroutine. All endpoint mutations are
// serialised by a per-endpoint mutex. Subscribers run on the delivering
// goroutine after the data is appended and after the lock is released, so
// a subscriber may call back into the Registry.
package kernel
