package testutil

import (
	"fmt"
	"sync/atomic"
)

// DefaultFlowBase is used when a scenario names no flow token.
const DefaultFlowBase = "test-flow"

// FlowSequence hands out predictable flow tokens: base-1, base-2, ...
//
// It satisfies chain.FlowTokenGenerator. Two chains in one scenario get
// distinct tokens, and the same scenario always assigns the same tokens in
// the same order.
type FlowSequence struct {
	base string
	n    atomic.Int64
}

// NewFlowSequence returns a generator over base, or DefaultFlowBase when
// base is empty.
func NewFlowSequence(base string) *FlowSequence {
	if base == "" {
		base = DefaultFlowBase
	}
	return &FlowSequence{base: base}
}

// Generate returns the next token.
func (g *FlowSequence) Generate() string {
	return fmt.Sprintf("%s-%d", g.base, g.n.Add(1))
}

// Base returns the token prefix.
func (g *FlowSequence) Base() string {
	return g.base
}

// Reset restarts numbering at 1.
func (g *FlowSequence) Reset() {
	g.n.Store(0)
}
