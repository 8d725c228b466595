package chain

import (
	"errors"
	"sync"
)

// DefaultSteps is the request-handling chain used by the demos:
// read the request, query the database, call an API, send the response.
var DefaultSteps = []string{"request read", "db query", "api call", "response send"}

// StepState is the state of one chain step.
type StepState int

const (
	StatePending StepState = iota
	StateSucceeded
	StateFailed
)

func (s StepState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the state of a whole chain run.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// step holds only its successor; the terminal handlers live on the Chain.
type step struct {
	name   string
	index  int
	state  StepState
	result string
	err    error
	next   *step
}

// StepView is a read-only copy of a step.
type StepView struct {
	Name   string
	Index  int
	State  StepState
	Result string
	Err    error
}

// Transition is reported to the observer each time a step leaves pending.
type Transition struct {
	Chain  string
	Token  string
	Step   string
	Index  int
	State  StepState
	Result string
	Err    error
}

// SuccessHandler is called once when the last step succeeds.
type SuccessHandler func(token string, results []string)

// ErrorHandler is called once with the first step failure.
type ErrorHandler func(token string, err error)

// Chain runs a fixed sequence of asynchronous steps through a reactor.
//
// Each step is pending until its endpoint is dispatched. A succeeded step
// starts its successor; a failed step moves the chain to failed, calls the
// error handler once, and leaves every later step pending forever. Nothing
// is retried.
//
// Thread-safety: steps complete on the reactor's loop goroutine. Status and
// Steps may be read from any goroutine.
type Chain struct {
	name  string
	eps   Endpoints
	sched Scheduler

	failAt    int
	onSuccess SuccessHandler
	onError   ErrorHandler
	observer  func(Transition)
	tokens    FlowTokenGenerator

	mu     sync.Mutex
	head   *step
	steps  []*step
	status Status
	token  string
}

// Option configures a Chain.
type Option func(*Chain)

// WithFailAt injects a failure at the 1-based step k. Zero means no failure.
func WithFailAt(k int) Option {
	return func(c *Chain) {
		c.failAt = k
	}
}

// WithSuccessHandler sets the terminal success handler.
func WithSuccessHandler(h SuccessHandler) Option {
	return func(c *Chain) {
		c.onSuccess = h
	}
}

// WithErrorHandler sets the shared terminal error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Chain) {
		c.onError = h
	}
}

// WithObserver sets a hook that sees every step transition.
func WithObserver(fn func(Transition)) Option {
	return func(c *Chain) {
		c.observer = fn
	}
}

// WithTokenGenerator sets the generator for run tokens (default UUIDv7).
func WithTokenGenerator(g FlowTokenGenerator) Option {
	return func(c *Chain) {
		if g != nil {
			c.tokens = g
		}
	}
}

// New builds a chain named name over steps, in order.
func New(name string, eps Endpoints, sched Scheduler, steps []string, opts ...Option) *Chain {
	c := &Chain{
		name:   name,
		eps:    eps,
		sched:  sched,
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.steps = make([]*step, len(steps))
	for i, n := range steps {
		c.steps[i] = &step{name: n, index: i + 1}
	}
	for i := 0; i+1 < len(c.steps); i++ {
		c.steps[i].next = c.steps[i+1]
	}
	if len(c.steps) > 0 {
		c.head = c.steps[0]
	}
	return c
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return c.name
}

// Start begins a run by scheduling the first step. The step fires on a
// later reactor pass.
func (c *Chain) Start() error {
	c.mu.Lock()
	switch {
	case c.head == nil:
		c.mu.Unlock()
		return ErrNoSteps
	case c.status == StatusRunning:
		c.mu.Unlock()
		return ErrAlreadyRunning
	case c.status != StatusIdle:
		c.mu.Unlock()
		return ErrFinished
	}
	c.status = StatusRunning
	c.token = c.tokens.Generate()
	head := c.head
	c.mu.Unlock()

	c.schedule(head)
	return nil
}

// Reset returns a finished chain to idle with every step pending, so it can
// be started again. It returns ErrAlreadyRunning during a run.
func (c *Chain) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return ErrAlreadyRunning
	}
	for _, s := range c.steps {
		s.state = StatePending
		s.result = ""
		s.err = nil
	}
	c.status = StatusIdle
	c.token = ""
	return nil
}

// Status returns the chain's status.
func (c *Chain) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Token returns the current run's token, empty before the first Start.
func (c *Chain) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Steps returns a copy of every step, in order.
func (c *Chain) Steps() []StepView {
	c.mu.Lock()
	defer c.mu.Unlock()

	views := make([]StepView, len(c.steps))
	for i, s := range c.steps {
		views[i] = StepView{Name: s.name, Index: s.index, State: s.state, Result: s.result, Err: s.err}
	}
	return views
}

func (c *Chain) schedule(s *step) {
	AsyncOpWithError(c.eps, c.sched, s.name, c.failAt == s.index, func(result string, err error) {
		c.complete(s, result, err)
	})
}

// complete moves s out of pending and either continues or terminates.
// CRITICAL: runs on the reactor goroutine.
func (c *Chain) complete(s *step, result string, err error) {
	c.mu.Lock()
	if c.status != StatusRunning || s.state != StatePending {
		c.mu.Unlock()
		return
	}

	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			err = &StepError{Chain: c.name, Step: se.Step, Index: s.index}
		}
		s.state = StateFailed
		s.err = err
		c.status = StatusFailed
	} else {
		s.state = StateSucceeded
		s.result = result
		if s.next == nil {
			c.status = StatusSucceeded
		}
	}
	t := Transition{
		Chain:  c.name,
		Token:  c.token,
		Step:   s.name,
		Index:  s.index,
		State:  s.state,
		Result: s.result,
		Err:    s.err,
	}
	status := c.status
	results := c.resultsLocked()
	c.mu.Unlock()

	if c.observer != nil {
		c.observer(t)
	}

	switch status {
	case StatusFailed:
		if c.onError != nil {
			c.onError(t.Token, t.Err)
		}
	case StatusSucceeded:
		if c.onSuccess != nil {
			c.onSuccess(t.Token, results)
		}
	default:
		c.schedule(s.next)
	}
}

func (c *Chain) resultsLocked() []string {
	var out []string
	for _, s := range c.steps {
		if s.state == StateSucceeded {
			out = append(out, s.result)
		}
	}
	return out
}
