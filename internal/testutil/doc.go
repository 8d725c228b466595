// Package testutil holds deterministic stand-ins for the clocks and token
// generators used at runtime, so a scenario run twice yields identical
// traces.
package testutil
