// Package store keeps a SQLite snapshot of simulation state.
//
// The harness writes one row per endpoint, dispatch, chain and chain step
// at the end of a run, then evaluates final_state assertions with plain SQL
// against the tables:
//
//   - endpoints(id, name, inbound, outbound, subscribers, interest, queued)
//   - dispatches(seq, id, name, mask)
//   - chains(name, token, status)
//   - chain_steps(chain, position, step, state, result, error)
//
// # Ordering
//
// Readers order by logical keys (seq, id, position), never by insertion
// time, so two runs of the same scenario read back identical rows.
//
// # Writes
//
// Every writer is an upsert keyed on the table's primary key. Writing the
// same snapshot twice leaves the tables unchanged.
package store
