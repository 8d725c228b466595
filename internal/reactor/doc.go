// Package reactor implements a single-threaded callback reactor on top of
// the persistent-interest poller.
//
// The loop waits for readiness events, then invokes the callback registered
// for each endpoint in the order the events were queued. Callbacks never run
// concurrently with each other. A callback may register further callbacks,
// which is how chained asynchronous operations are built.
//
// Failures inside the loop (a drained event with no callback, a panicking
// callback) are reported as RuntimeError values, logged, and skipped.
package reactor
