// Package poller implements the two readiness strategies compared by this
// simulator.
//
// LevelPoller is select(2)-style. The caller passes the complete interest
// sets on every call and the poller rescans all of them until something is
// ready or the timeout elapses. A call costs O(len(read)+len(write)) checks
// no matter how few endpoints are ready.
//
// PersistentPoller is epoll(7)-style. Interest is registered once with
// AddInterest, which subscribes to the endpoint in the kernel registry.
// Deliveries push readiness events into a de-duplicated FIFO ready queue and
// Wait drains it. A Wait costs O(events returned), independent of how many
// endpoints are registered.
//
// Both pollers block through the same primitive (blockUntil): wait for a
// predicate to hold or for a timeout, either by polling on a fixed quantum or
// by waking on a signal channel. Timeouts are a normal outcome, reported by an
// empty result and an informational log record.
//
// Neither poller is meant to be waited on from two goroutines at once.
// Deliveries from producer goroutines may interleave with a Wait in progress.
package poller
