package kernel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateEndpoint_StartsAtThree(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, ID(3), r.CreateEndpoint())
	assert.Equal(t, ID(4), r.CreateEndpoint())
	assert.Equal(t, ID(5), r.CreateEndpoint())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_CreateEndpoint_StrictlyIncreasing(t *testing.T) {
	r := NewRegistry()

	prev := ID(0)
	for i := 0; i < 1000; i++ {
		id := r.CreateEndpoint()
		require.Greater(t, id, prev, "id %d not greater than %d", id, prev)
		prev = id
	}
}

func TestRegistry_CreateEndpoint_ConcurrentUnique(t *testing.T) {
	r := NewRegistry()
	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	ids := make(chan ID, goroutines*perGoroutine)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				ids <- r.CreateEndpoint()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ID]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d returned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, goroutines*perGoroutine, r.Len())
}

func TestRegistry_WithFirstID(t *testing.T) {
	r := NewRegistry(WithFirstID(100))
	assert.Equal(t, ID(100), r.CreateEndpoint())
	assert.Equal(t, ID(101), r.CreateEndpoint())
}

func TestRegistry_DeliverMakesReadable(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	assert.False(t, r.Query(id, KindRead), "fresh endpoint must not be readable")

	r.Deliver(id, []byte("hello"))
	assert.True(t, r.Query(id, KindRead))
	assert.True(t, r.IsReadable(id))
}

func TestRegistry_Deliver_UnknownIDIgnored(t *testing.T) {
	r := NewRegistry()

	assert.NotPanics(t, func() { r.Deliver(42, []byte("lost")) })
	assert.False(t, r.Query(42, KindRead))
	assert.False(t, r.Exists(42))
}

func TestRegistry_Query_UnknownKindAndID(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	assert.False(t, r.Query(id, Kind("error")))
	assert.False(t, r.Query(999, KindWrite))
	assert.True(t, r.Query(id, KindWrite), "empty outbound is writable")
}

func TestRegistry_Recv_FIFO(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	r.Deliver(id, []byte("a"))
	r.Deliver(id, []byte("b"))
	r.Deliver(id, []byte("c"))

	for _, want := range []string{"a", "b", "c"} {
		got, ok := r.Recv(id)
		require.True(t, ok)
		assert.Equal(t, want, string(got))
	}

	_, ok := r.Recv(id)
	assert.False(t, ok)
	assert.False(t, r.IsReadable(id), "drained endpoint is no longer readable")
}

func TestRegistry_Deliver_CopiesData(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	buf := []byte("original")
	r.Deliver(id, buf)
	copy(buf, "mutated!")

	got, ok := r.Recv(id)
	require.True(t, ok)
	assert.Equal(t, "original", string(got))
}

func TestRegistry_SubscribersCalledInOrderBeforeReturn(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	var calls []string
	require.True(t, r.Subscribe(id, func(got ID, kind Kind) {
		assert.Equal(t, id, got)
		assert.Equal(t, KindRead, kind)
		calls = append(calls, "first")
	}))
	require.True(t, r.Subscribe(id, func(ID, Kind) {
		calls = append(calls, "second")
	}))

	r.Deliver(id, []byte("x"))

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRegistry_SubscriberSeesData(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	var readable bool
	r.Subscribe(id, func(got ID, _ Kind) {
		readable = r.IsReadable(got)
	})
	r.Deliver(id, []byte("x"))

	assert.True(t, readable, "subscriber must observe the appended data")
}

func TestRegistry_Subscribe_UnknownID(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Subscribe(7, func(ID, Kind) {}))
	assert.Equal(t, 0, r.Subscribers(7))
}

func TestRegistry_Subscribe_Cumulative(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	s := func(ID, Kind) {}
	r.Subscribe(id, s)
	r.Subscribe(id, s)

	assert.Equal(t, 2, r.Subscribers(id))
}

func TestRegistry_SendAndWritable(t *testing.T) {
	r := NewRegistry(WithOutboundCapacity(2))
	id := r.CreateEndpoint()

	require.NoError(t, r.Send(id, []byte("1")))
	assert.True(t, r.IsWritable(id))
	require.NoError(t, r.Send(id, []byte("2")))
	assert.False(t, r.IsWritable(id))

	err := r.Send(id, []byte("3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWouldBlock)

	out, err := r.TakeOutbound(id)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.True(t, r.IsWritable(id))
}

func TestRegistry_DefaultOutboundCapacity(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	for i := 0; i < DefaultOutboundCapacity; i++ {
		require.True(t, r.IsWritable(id), "writable with %d queued", i)
		require.NoError(t, r.Send(id, []byte{byte(i)}))
	}
	assert.False(t, r.IsWritable(id))
}

func TestRegistry_Send_UnknownEndpoint(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Send(9, []byte("x")), ErrUnknownEndpoint)
	_, err := r.TakeOutbound(9)
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	a := r.CreateEndpoint()
	b := r.CreateEndpoint()

	r.Deliver(b, []byte("1"))
	r.Deliver(b, []byte("2"))
	require.NoError(t, r.Send(a, []byte("out")))
	r.Subscribe(a, func(ID, Kind) {})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, EndpointState{ID: a, Inbound: 0, Outbound: 1, Subscribers: 1}, snap[0])
	assert.Equal(t, EndpointState{ID: b, Inbound: 2, Outbound: 0, Subscribers: 0}, snap[1])
}

func TestRegistry_ConcurrentDeliver(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEndpoint()

	const producers = 10
	const perProducer = 100

	var mu sync.Mutex
	notified := 0
	r.Subscribe(id, func(ID, Kind) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Deliver(id, []byte("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, notified)
	assert.Equal(t, producers*perProducer, r.Snapshot()[0].Inbound)
}

func TestEventMask_String(t *testing.T) {
	assert.Equal(t, "none", EventMask(0).String())
	assert.Equal(t, "read", EventRead.String())
	assert.Equal(t, "write", EventWrite.String())
	assert.Equal(t, "read|write", (EventRead | EventWrite).String())
}

func TestKind_Mask(t *testing.T) {
	assert.Equal(t, EventRead, KindRead.Mask())
	assert.Equal(t, EventWrite, KindWrite.Mask())
	assert.Equal(t, EventMask(0), Kind("bogus").Mask())
}
