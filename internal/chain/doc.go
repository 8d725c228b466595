// Package chain composes multi-step asynchronous workflows on the reactor.
//
// AsyncOp and AsyncOpWithError are the building blocks: each one creates an
// endpoint, registers a one-shot callback, and delivers data so the callback
// fires on a later reactor pass. Callers can nest them by hand.
//
// Chain expresses the same workflow as a state machine. Steps run strictly in
// order; the first failure short-circuits the rest and reaches a single
// shared error handler exactly once.
package chain
