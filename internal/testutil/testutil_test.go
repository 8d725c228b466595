package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pollsim/internal/chain"
)

var _ chain.FlowTokenGenerator = (*FlowSequence)(nil)

func TestSequence_Monotonic(t *testing.T) {
	seq := NewSequence()
	assert.Equal(t, int64(0), seq.Current())

	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(2), seq.Current())
}

func TestSequence_Reset(t *testing.T) {
	seq := NewSequence()
	seq.Next()
	seq.Next()

	seq.Reset()
	assert.Equal(t, int64(0), seq.Current())
	assert.Equal(t, int64(1), seq.Next())
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	seq := NewSequence()
	const workers, calls = 50, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := seq.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls), seq.Current())
}

func TestFlowSequence(t *testing.T) {
	gen := NewFlowSequence("run")
	assert.Equal(t, "run", gen.Base())
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "run-1", gen.Generate())
}

func TestFlowSequence_DefaultBase(t *testing.T) {
	gen := NewFlowSequence("")
	assert.Equal(t, "test-flow-1", gen.Generate())
}
