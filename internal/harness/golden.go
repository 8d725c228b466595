package harness

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pollsim/internal/canon"
)

// GoldenDir is where golden trace files live, relative to the test's
// package directory.
const GoldenDir = "testdata/golden"

// GoldenSuffix is the golden file extension.
const GoldenSuffix = ".golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	FlowToken    string       `json:"flow_token,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

func traceList(trace []TraceEvent) []any {
	list := make([]any, len(trace))
	for i, event := range trace {
		m := map[string]any{
			"seq":     event.Seq,
			"kind":    event.Kind,
			"subject": event.Subject,
		}
		if len(event.Data) > 0 {
			m["data"] = event.Data
		}
		list[i] = m
	}
	return list
}

func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	m := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList(s.Trace),
	}
	if s.FlowToken != "" {
		m["flow_token"] = s.FlowToken
	}
	return m
}

// Marshal returns the canonical JSON form written to golden files.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	data, err := canon.Marshal(s.toCanonicalMap())
	if err != nil {
		return nil, fmt.Errorf("marshal trace %s: %w", s.ScenarioName, err)
	}
	return data, nil
}

// SnapshotOf builds the golden snapshot of a scenario's result.
func SnapshotOf(scenario *Scenario, result *Result) *TraceSnapshot {
	return &TraceSnapshot{
		ScenarioName: scenario.Name,
		FlowToken:    scenario.FlowToken,
		Trace:        result.Trace,
	}
}

// TraceDigest returns the domain-separated digest of a trace. Equal traces
// have equal digests regardless of map ordering.
func TraceDigest(trace []TraceEvent) (string, error) {
	return canon.Digest(canon.DomainTrace, traceList(trace))
}

// GoldenPath returns the golden file for name under dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+GoldenSuffix)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}

	data, err := SnapshotOf(scenario, result).Marshal()
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
