// Package harness runs YAML scenarios against the live simulation and
// checks the resulting trace and final state.
//
// # Scenario Format
//
//	name: echo_three
//	description: "three endpoints, one drain"
//	flow_token: run            # chain tokens become run-1, run-2, ...
//	config: |                  # optional CUE, unified with the defaults
//	  reactor: throttle: "0s"
//	endpoints: [a, b, c]       # created in order
//	register: [a, b, c]        # echo callback on the reactor
//	interest: []               # read interest without a callback
//	steps:
//	  - deliver: {endpoint: a, data: hello}
//	  - drain: {max_events: 3, timeout: 50ms}
//	  - wait: {max_events: 3, timeout: 0s}
//	  - select: {read: [a], write: [b], timeout: 0s}
//	  - chain: {name: req, fail_at: 2}
//	  - run: {passes: 5, max_events: 10, timeout: 20ms}
//	  - flush: a
//	assertions:
//	  - type: trace_order
//	    events: ["dispatch:a", "dispatch:b"]
//	  - type: final_state
//	    table: chain_steps
//	    where: {chain: req, position: 2}
//	    expect: {state: failed}
//
// drain is one reactor pass. wait is one persistent-poller wait whose
// events are recorded but not dispatched. run repeats drain until a pass is
// empty. Endpoints a chain creates are named "<chain>#1", "<chain>#2", ...
//
// # Trace
//
// Every step appends events of the form {seq, kind, subject, data}. Kinds
// are deliver, dispatch, callback, ready, select, timeout, flush, step,
// chain and error. The subject is an endpoint name, a chain name, or the
// poller ("level", "persistent").
//
// # Assertion Types
//
//   - trace_contains: some event has the kind, subject and data (subset)
//   - trace_order: "kind:subject" keys occur in the given order
//   - trace_count: exactly N events match
//   - final_state: one row of endpoints, dispatches, chains or chain_steps
//     matches where and holds expect
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden using goldie. Runs are deterministic: ids
// follow kernel.first_id, trace and dispatch sequence numbers start at 1,
// and flow tokens come from a counter.
package harness
