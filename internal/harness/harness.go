package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/pollsim/internal/chain"
	"github.com/roach88/pollsim/internal/config"
	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
	"github.com/roach88/pollsim/internal/reactor"
	"github.com/roach88/pollsim/internal/store"
	"github.com/roach88/pollsim/internal/testutil"
)

// Option configures a run.
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *slog.Logger
}

// WithConfig sets the configuration for scenarios that carry no config of
// their own. A scenario's inline config replaces it entirely.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger routes component logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Harness holds the live components of one run.
//
// Everything runs on the goroutine that called Run: steps, reactor passes,
// and the callbacks they dispatch.
type Harness struct {
	logger *slog.Logger
	store  *store.Store
	seq    *testutil.Sequence
	tokens *testutil.FlowSequence

	reg        *kernel.Registry
	level      *poller.LevelPoller
	persistent *poller.PersistentPoller
	reactor    *reactor.Reactor

	names      map[kernel.ID]string
	ids        map[string]kernel.ID
	chains     map[string]*chain.Chain
	chainOrder []string
	dispatches []store.DispatchRow

	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh registry, pollers, reactor and
// in-memory database. Execution flow:
//  1. Resolve configuration and build the components
//  2. Create endpoints, register callbacks and interest
//  3. Execute steps in order, recording the trace
//  4. Write the final state snapshot
//  5. Evaluate assertions
//
// A failed assertion is reported in the result; an error means the run
// itself could not be carried out.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := resolveConfig(scenario, o.cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(cfg, st, scenario.FlowToken, o.logger)
	h.setup(scenario)

	for i, step := range scenario.Steps {
		h.execute(step)
		h.logger.Debug("scenario step completed", "scenario", scenario.Name, "step", i)
	}

	ctx := context.Background()
	if err := st.WriteSnapshot(ctx, h.snapshot()); err != nil {
		return nil, fmt.Errorf("failed to write final state: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func resolveConfig(scenario *Scenario, base *config.Config) (*config.Config, error) {
	if scenario.Config != "" {
		cfg, err := config.Parse(scenario.Name+".config", []byte(scenario.Config))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		return cfg, nil
	}
	if base != nil {
		return base, nil
	}
	return config.Default()
}

func newHarness(cfg *config.Config, st *store.Store, flowToken string, logger *slog.Logger) *Harness {
	h := &Harness{
		logger: logger,
		store:  st,
		seq:    testutil.NewSequence(),
		tokens: testutil.NewFlowSequence(flowToken),
		names:  make(map[kernel.ID]string),
		ids:    make(map[string]kernel.ID),
		chains: make(map[string]*chain.Chain),
		result: NewResult(),
	}

	h.reg = kernel.NewRegistry(append(cfg.KernelOptions(), kernel.WithLogger(logger))...)
	h.level = poller.NewLevelPoller(h.reg, append(cfg.LevelOptions(), poller.WithLevelLogger(logger))...)
	h.persistent = poller.NewPersistentPoller(h.reg, append(cfg.PersistentOptions(), poller.WithPersistentLogger(logger))...)
	h.reactor = reactor.New(h.persistent, append(cfg.ReactorOptions(),
		reactor.WithLogger(logger),
		reactor.WithDispatchHook(h.onDispatch),
		reactor.WithErrorHook(h.onError),
	)...)
	return h
}

func (h *Harness) setup(s *Scenario) {
	for _, name := range s.Endpoints {
		id := h.reg.CreateEndpoint()
		h.bind(id, name)
	}
	for _, name := range s.Register {
		h.reactor.Register(h.ids[name], h.echo)
	}
	for _, name := range s.Interest {
		h.persistent.AddInterest(h.ids[name], kernel.EventRead)
	}
}

func (h *Harness) bind(id kernel.ID, name string) {
	h.names[id] = name
	h.ids[name] = id
}

// name returns the scenario name of id, or "#id" for an endpoint the
// scenario never named.
func (h *Harness) name(id kernel.ID) string {
	if n, ok := h.names[id]; ok {
		return n
	}
	return fmt.Sprintf("#%d", id)
}

func (h *Harness) namesOf(ids []kernel.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = h.name(id)
	}
	return out
}

func (h *Harness) idsOf(names []string) []kernel.ID {
	out := make([]kernel.ID, len(names))
	for i, n := range names {
		out[i] = h.ids[n]
	}
	return out
}

func (h *Harness) trace(kind, subject string, data map[string]any) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:     h.seq.Next(),
		Kind:    kind,
		Subject: subject,
		Data:    data,
	})
}

func (h *Harness) execute(step Step) {
	switch {
	case step.Deliver != nil:
		count := step.Deliver.Count
		if count == 0 {
			count = 1
		}
		id := h.ids[step.Deliver.Endpoint]
		for i := 0; i < count; i++ {
			h.deliver(id, []byte(step.Deliver.Data))
		}
	case step.Drain != nil:
		h.drain(step.Drain.MaxEvents, step.Drain.Timeout.Std())
	case step.Wait != nil:
		h.wait(step.Wait.MaxEvents, step.Wait.Timeout.Std())
	case step.Select != nil:
		h.selectReady(step.Select)
	case step.Chain != nil:
		h.startChain(step.Chain)
	case step.Run != nil:
		for i := 0; i < step.Run.Passes; i++ {
			if n, err := h.drain(step.Run.MaxEvents, step.Run.Timeout.Std()); err != nil || n == 0 {
				break
			}
		}
	case step.Flush != "":
		h.flush(step.Flush)
	}
}

func (h *Harness) deliver(id kernel.ID, data []byte) {
	h.trace(KindDeliver, h.name(id), map[string]any{"data": string(data)})
	h.reg.Deliver(id, data)
}

// drain is one reactor pass.
func (h *Harness) drain(maxEvents int, timeout time.Duration) (int, error) {
	n, err := h.reactor.RunOnce(maxEvents, timeout)
	switch {
	case err != nil:
		h.trace(KindError, "persistent", map[string]any{"error": err.Error()})
	case n == 0:
		h.trace(KindTimeout, "persistent", map[string]any{"timeout": timeout.String()})
	}
	return n, err
}

// wait drains the ready queue without dispatching.
func (h *Harness) wait(maxEvents int, timeout time.Duration) {
	events, err := h.persistent.Wait(maxEvents, timeout)
	if err != nil {
		h.trace(KindError, "persistent", map[string]any{"error": err.Error()})
		return
	}
	if len(events) == 0 {
		h.trace(KindTimeout, "persistent", map[string]any{"timeout": timeout.String()})
		return
	}
	for _, ev := range events {
		h.trace(KindReady, h.name(ev.ID), map[string]any{"mask": ev.Mask.String()})
	}
}

func (h *Harness) selectReady(s *SelectStep) {
	timeout := s.Timeout.Std()
	readyRead, readyWrite := h.level.Wait(h.idsOf(s.Read), h.idsOf(s.Write), timeout)
	if len(readyRead) == 0 && len(readyWrite) == 0 {
		h.trace(KindTimeout, "level", map[string]any{"timeout": timeout.String()})
		return
	}
	h.trace(KindSelect, "level", map[string]any{
		"read":  h.namesOf(readyRead),
		"write": h.namesOf(readyWrite),
	})
}

func (h *Harness) flush(name string) {
	id := h.ids[name]
	msgs, err := h.reg.TakeOutbound(id)
	if err != nil {
		h.trace(KindError, name, map[string]any{"error": err.Error()})
		return
	}
	h.trace(KindFlush, name, map[string]any{"messages": int64(len(msgs))})
}

// echo is the callback for registered endpoints: it consumes every inbound
// message and sends each one back out.
func (h *Harness) echo(id kernel.ID) {
	received := []string{}
	var echoed int64
	for {
		data, ok := h.reg.Recv(id)
		if !ok {
			break
		}
		received = append(received, string(data))
		if err := h.reg.Send(id, data); err == nil {
			echoed++
		}
	}
	h.trace(KindCallback, h.name(id), map[string]any{
		"received": received,
		"echoed":   echoed,
	})
}

func (h *Harness) onDispatch(d reactor.Dispatch) {
	name := h.name(d.ID)
	h.dispatches = append(h.dispatches, store.DispatchRow{
		Seq:  d.Seq,
		ID:   d.ID,
		Name: name,
		Mask: d.Mask.String(),
	})
	h.trace(KindDispatch, name, map[string]any{
		"dispatch_seq": d.Seq,
		"mask":         d.Mask.String(),
	})
}

func (h *Harness) onError(err *reactor.RuntimeError) {
	h.trace(KindError, h.name(err.EndpointID), map[string]any{"code": string(err.Code)})
}

func (h *Harness) startChain(cs *ChainStep) {
	c, ok := h.chains[cs.Name]
	if !ok {
		steps := cs.Steps
		if len(steps) == 0 {
			steps = chain.DefaultSteps
		}
		c = chain.New(cs.Name, &chainEndpoints{h: h, chain: cs.Name}, h.reactor, steps,
			chain.WithFailAt(cs.FailAt),
			chain.WithTokenGenerator(h.tokens),
			chain.WithObserver(h.onTransition),
			chain.WithSuccessHandler(func(token string, results []string) {
				h.trace(KindChain, cs.Name, map[string]any{
					"status":  chain.StatusSucceeded.String(),
					"token":   token,
					"results": results,
				})
			}),
			chain.WithErrorHandler(func(token string, err error) {
				h.trace(KindChain, cs.Name, map[string]any{
					"status": chain.StatusFailed.String(),
					"token":  token,
					"error":  err.Error(),
				})
			}),
		)
		h.chains[cs.Name] = c
		h.chainOrder = append(h.chainOrder, cs.Name)
	} else if err := c.Reset(); err != nil {
		h.trace(KindError, cs.Name, map[string]any{"error": err.Error()})
		return
	}

	if err := c.Start(); err != nil {
		h.trace(KindError, cs.Name, map[string]any{"error": err.Error()})
	}
}

func (h *Harness) onTransition(t chain.Transition) {
	data := map[string]any{
		"index": int64(t.Index),
		"step":  t.Step,
		"state": t.State.String(),
		"token": t.Token,
	}
	if t.Err != nil {
		data["error"] = t.Err.Error()
	} else {
		data["result"] = t.Result
	}
	h.trace(KindStep, t.Chain, data)
}

// snapshot collects the final state for the store.
func (h *Harness) snapshot() store.Snapshot {
	var snap store.Snapshot
	for _, st := range h.reg.Snapshot() {
		interest := ""
		if mask, ok := h.persistent.Interest(st.ID); ok {
			interest = mask.String()
		}
		snap.Endpoints = append(snap.Endpoints, store.EndpointRow{
			ID:          st.ID,
			Name:        h.name(st.ID),
			Inbound:     st.Inbound,
			Outbound:    st.Outbound,
			Subscribers: st.Subscribers,
			Interest:    interest,
			Queued:      h.persistent.Queued(st.ID),
		})
	}
	snap.Dispatches = h.dispatches

	for _, name := range h.chainOrder {
		c := h.chains[name]
		snap.Chains = append(snap.Chains, store.ChainRow{
			Name:   name,
			Token:  c.Token(),
			Status: c.Status().String(),
		})
		for _, sv := range c.Steps() {
			row := store.StepRow{
				Chain:    name,
				Position: sv.Index,
				Step:     sv.Name,
				State:    sv.State.String(),
				Result:   sv.Result,
			}
			if sv.Err != nil {
				row.Error = sv.Err.Error()
			}
			snap.Steps = append(snap.Steps, row)
		}
	}
	return snap
}

// chainEndpoints names the endpoints a chain creates "<chain>#1",
// "<chain>#2", ... and records their deliveries in the trace.
type chainEndpoints struct {
	h     *Harness
	chain string
	n     int
}

func (c *chainEndpoints) CreateEndpoint() kernel.ID {
	id := c.h.reg.CreateEndpoint()
	c.n++
	c.h.bind(id, fmt.Sprintf("%s#%d", c.chain, c.n))
	return id
}

func (c *chainEndpoints) Deliver(id kernel.ID, data []byte) {
	c.h.deliver(id, data)
}
