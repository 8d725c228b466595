package reactor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pollsim/internal/kernel"
	"github.com/roach88/pollsim/internal/poller"
)

type fixture struct {
	reg     *kernel.Registry
	reactor *Reactor
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := kernel.NewRegistry(kernel.WithLogger(logger))
	p := poller.NewPersistentPoller(reg, poller.WithPersistentLogger(logger))
	opts = append([]Option{WithLogger(logger), WithThrottle(0)}, opts...)
	return fixture{reg: reg, reactor: New(p, opts...)}
}

// Three endpoints, one callback each, all delivered before a single drain.
func TestReactor_ThreeEndpointsDispatchInDeliveryOrder(t *testing.T) {
	f := newFixture(t)

	ids := []kernel.ID{f.reg.CreateEndpoint(), f.reg.CreateEndpoint(), f.reg.CreateEndpoint()}
	var fired []kernel.ID
	for _, id := range ids {
		f.reactor.Register(id, func(id kernel.ID) {
			fired = append(fired, id)
		})
	}

	f.reg.Deliver(ids[1], []byte("b"))
	f.reg.Deliver(ids[0], []byte("a"))
	f.reg.Deliver(ids[2], []byte("c"))

	n, err := f.reactor.RunOnce(3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []kernel.ID{ids[1], ids[0], ids[2]}, fired)
}

func TestReactor_CallbackSeesInboundData(t *testing.T) {
	f := newFixture(t)
	id := f.reg.CreateEndpoint()

	var got []byte
	f.reactor.Register(id, func(id kernel.ID) {
		data, ok := f.reg.Recv(id)
		require.True(t, ok, "inbound queue should already be populated")
		got = data
	})
	f.reg.Deliver(id, []byte("hello"))

	_, err := f.reactor.RunOnce(1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestReactor_RegisterOverwrites(t *testing.T) {
	f := newFixture(t)
	id := f.reg.CreateEndpoint()

	var which string
	f.reactor.Register(id, func(kernel.ID) { which = "first" })
	f.reactor.Register(id, func(kernel.ID) { which = "second" })

	f.reg.Deliver(id, []byte("x"))
	n, err := f.reactor.RunOnce(10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "second", which)
}

func TestReactor_DispatchHookCarriesSequence(t *testing.T) {
	var dispatches []Dispatch
	f := newFixture(t, WithDispatchHook(func(d Dispatch) {
		dispatches = append(dispatches, d)
	}))

	a := f.reg.CreateEndpoint()
	b := f.reg.CreateEndpoint()
	f.reactor.Register(a, func(kernel.ID) {})
	f.reactor.Register(b, func(kernel.ID) {})

	f.reg.Deliver(a, []byte("1"))
	f.reg.Deliver(b, []byte("2"))
	_, err := f.reactor.RunOnce(10, time.Second)
	require.NoError(t, err)

	require.Len(t, dispatches, 2)
	assert.Equal(t, Dispatch{Seq: 1, ID: a, Mask: kernel.EventRead}, dispatches[0])
	assert.Equal(t, Dispatch{Seq: 2, ID: b, Mask: kernel.EventRead}, dispatches[1])
	assert.Equal(t, int64(2), f.reactor.Clock().Current())
}

func TestReactor_MissingCallbackIsReportedAndSkipped(t *testing.T) {
	var errs []*RuntimeError
	f := newFixture(t, WithErrorHook(func(err *RuntimeError) {
		errs = append(errs, err)
	}))

	orphan := f.reg.CreateEndpoint()
	ok := f.reg.CreateEndpoint()
	f.reactor.Poller().AddInterest(orphan, kernel.EventRead)

	fired := false
	f.reactor.Register(ok, func(kernel.ID) { fired = true })

	f.reg.Deliver(orphan, []byte("x"))
	f.reg.Deliver(ok, []byte("y"))

	n, err := f.reactor.RunOnce(10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, fired, "later events are still dispatched")

	require.Len(t, errs, 1)
	assert.True(t, IsNoCallback(errs[0]))
	assert.Equal(t, orphan, errs[0].EndpointID)
}

func TestReactor_PanicIsRecovered(t *testing.T) {
	var errs []*RuntimeError
	f := newFixture(t, WithErrorHook(func(err *RuntimeError) {
		errs = append(errs, err)
	}))

	bad := f.reg.CreateEndpoint()
	good := f.reg.CreateEndpoint()
	f.reactor.Register(bad, func(kernel.ID) { panic("boom") })

	fired := false
	f.reactor.Register(good, func(kernel.ID) { fired = true })

	f.reg.Deliver(bad, []byte("x"))
	f.reg.Deliver(good, []byte("y"))

	require.NotPanics(t, func() {
		_, err := f.reactor.RunOnce(10, time.Second)
		require.NoError(t, err)
	})
	assert.True(t, fired)

	require.Len(t, errs, 1)
	assert.True(t, IsCallbackPanic(errs[0]))
	assert.Contains(t, errs[0].Error(), "boom")
}

func TestReactor_RunOnceTimeout(t *testing.T) {
	f := newFixture(t)
	id := f.reg.CreateEndpoint()
	f.reactor.Register(id, func(kernel.ID) {})

	start := time.Now()
	n, err := f.reactor.RunOnce(3, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReactor_RunOnceInvalidMaxEvents(t *testing.T) {
	f := newFixture(t)
	_, err := f.reactor.RunOnce(0, 0)
	assert.True(t, errors.Is(err, poller.ErrInvalidMaxEvents))
}

func TestReactor_CallbackCanRegisterNextStep(t *testing.T) {
	f := newFixture(t)
	first := f.reg.CreateEndpoint()

	var order []string
	f.reactor.Register(first, func(kernel.ID) {
		order = append(order, "first")
		next := f.reg.CreateEndpoint()
		f.reactor.Register(next, func(kernel.ID) {
			order = append(order, "second")
		})
		f.reg.Deliver(next, []byte("next"))
	})
	f.reg.Deliver(first, []byte("go"))

	for i := 0; i < 2; i++ {
		_, err := f.reactor.RunOnce(10, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestReactor_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, WithWaitTimeout(10*time.Millisecond))
	id := f.reg.CreateEndpoint()

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	f.reactor.Register(id, func(kernel.ID) {
		count++
		cancel()
	})
	f.reg.Deliver(id, []byte("x"))

	done := make(chan error, 1)
	go func() { done <- f.reactor.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Equal(t, 1, count)
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(10), c.Current())
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(12), c.Next())
	assert.Equal(t, int64(12), c.Current())
}
