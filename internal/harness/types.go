package harness

// Trace event kinds.
const (
	KindDeliver  = "deliver"  // data arrived on an endpoint
	KindDispatch = "dispatch" // reactor invoked a callback
	KindCallback = "callback" // echo callback consumed inbound data
	KindReady    = "ready"    // raw persistent wait returned an event
	KindSelect   = "select"   // level poller returned ready endpoints
	KindTimeout  = "timeout"  // a wait returned nothing
	KindFlush    = "flush"    // outbound queue drained
	KindStep     = "step"     // chain step left pending
	KindChain    = "chain"    // chain reached a terminal status
	KindError    = "error"    // reactor runtime error or rejected chain start
)

// TraceEvent is one observable occurrence during a run.
//
// Data values are limited to what canonical JSON accepts: string, int64,
// bool, []string and nested map[string]any.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Kind    string         `json:"kind"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data,omitempty"`
}

// Key returns "kind:subject", the form trace_order assertions use.
func (e TraceEvent) Key() string {
	return e.Kind + ":" + e.Subject
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace is every event in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many trace events have the given kind and subject.
// An empty subject matches any subject.
func (r *Result) Count(kind, subject string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Kind == kind && (subject == "" || ev.Subject == subject) {
			n++
		}
	}
	return n
}
