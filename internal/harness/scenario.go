package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario drives one simulation run and states what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FlowToken is the prefix for chain flow tokens. Chains started in the
	// scenario get FlowToken-1, FlowToken-2, ... in start order.
	FlowToken string `yaml:"flow_token,omitempty"`

	// Config is inline CUE unified with the default configuration.
	Config string `yaml:"config,omitempty"`

	// Endpoints are created in order, so ids follow kernel.first_id.
	Endpoints []string `yaml:"endpoints"`

	// Register lists endpoints that get the echo callback on the reactor.
	Register []string `yaml:"register,omitempty"`

	// Interest lists endpoints with read interest on the persistent poller
	// but no callback.
	Interest []string `yaml:"interest,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one action. Flush names an endpoint whose outbound queue
// is drained.
type Step struct {
	Deliver *DeliverStep `yaml:"deliver,omitempty"`
	Drain   *WaitStep    `yaml:"drain,omitempty"`
	Wait    *WaitStep    `yaml:"wait,omitempty"`
	Select  *SelectStep  `yaml:"select,omitempty"`
	Chain   *ChainStep   `yaml:"chain,omitempty"`
	Run     *RunStep     `yaml:"run,omitempty"`
	Flush   string       `yaml:"flush,omitempty"`
}

// DeliverStep appends Data to an endpoint's inbound queue Count times.
type DeliverStep struct {
	Endpoint string `yaml:"endpoint"`
	Data     string `yaml:"data"`
	Count    int    `yaml:"count,omitempty"`
}

// WaitStep is one persistent-poller wait. As drain it dispatches through
// the reactor; as wait it only records what became ready.
type WaitStep struct {
	MaxEvents int      `yaml:"max_events"`
	Timeout   Duration `yaml:"timeout"`
}

// SelectStep is one level-poller wait.
type SelectStep struct {
	Read    []string `yaml:"read,omitempty"`
	Write   []string `yaml:"write,omitempty"`
	Timeout Duration `yaml:"timeout"`
}

// ChainStep starts a named chain. A second step with the same name starts
// the existing chain again; it must have finished and is reset first.
type ChainStep struct {
	Name   string   `yaml:"name"`
	Steps  []string `yaml:"steps,omitempty"`
	FailAt int      `yaml:"fail_at,omitempty"`
}

// RunStep repeats drain passes until one comes back empty or Passes is
// reached.
type RunStep struct {
	Passes    int      `yaml:"passes"`
	MaxEvents int      `yaml:"max_events"`
	Timeout   Duration `yaml:"timeout"`
}

// Duration is a time.Duration written as a Go duration string ("50ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"50ms\"", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Kind and Subject select trace events (trace_contains, trace_count).
	// An empty Subject matches any subject.
	Kind    string `yaml:"kind,omitempty"`
	Subject string `yaml:"subject,omitempty"`

	// Data is a subset match against the event's data.
	Data map[string]any `yaml:"data,omitempty"`

	// Count is the exact number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events lists "kind:subject" keys that must occur in this order
	// (trace_order). Other events may appear in between.
	Events []string `yaml:"events,omitempty"`

	// Table, Where and Expect describe a final_state row check.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and that every name refers to a
// declared endpoint.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	declared := make(map[string]bool, len(s.Endpoints))
	for i, name := range s.Endpoints {
		if name == "" {
			return fmt.Errorf("endpoints[%d]: name is required", i)
		}
		if declared[name] {
			return fmt.Errorf("endpoints[%d]: duplicate endpoint %q", i, name)
		}
		declared[name] = true
	}
	known := func(field, name string) error {
		if !declared[name] {
			return fmt.Errorf("%s: unknown endpoint %q", field, name)
		}
		return nil
	}

	for i, name := range s.Register {
		if err := known(fmt.Sprintf("register[%d]", i), name); err != nil {
			return err
		}
	}
	for i, name := range s.Interest {
		if err := known(fmt.Sprintf("interest[%d]", i), name); err != nil {
			return err
		}
	}

	chains := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, known); err != nil {
			return err
		}
		if c := step.Chain; c != nil {
			if chains[c.Name] && (len(c.Steps) > 0 || c.FailAt != 0) {
				return fmt.Errorf("steps[%d].chain: %q restarts an existing chain and cannot set steps or fail_at", i, c.Name)
			}
			chains[c.Name] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step, known func(field, name string) error) error {
	field := fmt.Sprintf("steps[%d]", index)

	set := 0
	for _, present := range []bool{
		st.Deliver != nil, st.Drain != nil, st.Wait != nil,
		st.Select != nil, st.Chain != nil, st.Run != nil, st.Flush != "",
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%s: exactly one of deliver, drain, wait, select, chain, run, flush is required (got %d)", field, set)
	}

	switch {
	case st.Deliver != nil:
		if err := known(field+".deliver", st.Deliver.Endpoint); err != nil {
			return err
		}
		if st.Deliver.Count < 0 {
			return fmt.Errorf("%s.deliver: count must be non-negative", field)
		}
	case st.Drain != nil:
		return validateWait(field+".drain", st.Drain.Timeout)
	case st.Wait != nil:
		return validateWait(field+".wait", st.Wait.Timeout)
	case st.Select != nil:
		for _, name := range append(append([]string{}, st.Select.Read...), st.Select.Write...) {
			if err := known(field+".select", name); err != nil {
				return err
			}
		}
		if st.Select.Timeout < 0 {
			return fmt.Errorf("%s.select: timeout must not be negative", field)
		}
	case st.Chain != nil:
		if st.Chain.Name == "" {
			return fmt.Errorf("%s.chain: name is required", field)
		}
		if st.Chain.FailAt < 0 {
			return fmt.Errorf("%s.chain: fail_at must be non-negative", field)
		}
	case st.Run != nil:
		if st.Run.Passes <= 0 {
			return fmt.Errorf("%s.run: passes must be positive", field)
		}
		return validateWait(field+".run", st.Run.Timeout)
	case st.Flush != "":
		return known(field+".flush", st.Flush)
	}
	return nil
}

// validateWait rejects negative timeouts, which would block a scenario
// forever. max_events is left to the poller so scenarios can exercise its
// rejection.
func validateWait(field string, timeout Duration) error {
	if timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", field)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
