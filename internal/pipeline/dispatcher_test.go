package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

type captureAdapter struct {
	name string
	mu   sync.Mutex
	got  []domain.Batch

	panicOnce bool
	delay     time.Duration
}

func (a *captureAdapter) Name() string { return a.name }

func (a *captureAdapter) SendOrders(ctx context.Context, batch domain.Batch) {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panicOnce {
		a.panicOnce = false
		panic("boom")
	}
	a.got = append(a.got, batch)
}

func (a *captureAdapter) batches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.got)
}

// stampAdapter writes its name into every order it receives, the way real
// adapters set status fields.
type stampAdapter struct {
	name string
	mu   sync.Mutex
	got  []domain.Batch
}

func (a *stampAdapter) Name() string { return a.name }

func (a *stampAdapter) SendOrders(ctx context.Context, batch domain.Batch) {
	for _, o := range batch {
		o.AdapterName = a.name
		o.Status = domain.StatusSent
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, batch)
}

func (a *stampAdapter) batches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.got)
}

func TestDispatcherFansOutToAllAdapters(t *testing.T) {
	q := NewQueue(4, discardLogger())
	d := NewDispatcher(q, discardLogger())

	a1 := &captureAdapter{name: "one"}
	a2 := &captureAdapter{name: "two"}
	d.Register(a1)
	d.Register(a2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.True(t, q.Enqueue(batchOf("x", "y")))

	require.Eventually(t, func() bool {
		return a1.batches() == 1 && a2.batches() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, d.Drain(time.Second))
}

func TestDispatcherSurvivesAdapterPanic(t *testing.T) {
	q := NewQueue(4, discardLogger())
	d := NewDispatcher(q, discardLogger())

	a := &captureAdapter{name: "flaky", panicOnce: true}
	d.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx) //nolint:errcheck

	require.True(t, q.Enqueue(batchOf("first")))
	require.True(t, q.Enqueue(batchOf("second")))

	// The first dispatch panics, the second still lands.
	require.Eventually(t, func() bool {
		return a.batches() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDrainTimesOutOnSlowAdapter(t *testing.T) {
	q := NewQueue(4, discardLogger())
	d := NewDispatcher(q, discardLogger())

	a := &captureAdapter{name: "slow", delay: 500 * time.Millisecond}
	d.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.True(t, q.Enqueue(batchOf("x")))
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.False(t, d.Drain(50*time.Millisecond))
	assert.True(t, d.Drain(2*time.Second))
}

// Batches must reach each adapter in dequeue order even when dispatches take
// uneven time.
func TestDispatcherPreservesBatchOrderPerAdapter(t *testing.T) {
	const n = 500

	q := NewQueue(n, discardLogger())
	d := NewDispatcher(q, discardLogger())

	a1 := &captureAdapter{name: "one"}
	a2 := &captureAdapter{name: "two", delay: time.Microsecond}
	d.Register(a1)
	d.Register(a2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	want := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("order-%04d", i)
		want[i] = id
		require.True(t, q.Enqueue(batchOf(id)))
	}

	require.Eventually(t, func() bool {
		return a1.batches() == n && a2.batches() == n
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.True(t, d.Drain(time.Second))

	for _, a := range []*captureAdapter{a1, a2} {
		got := make([]string, n)
		for i, batch := range a.got {
			got[i] = batch[0].OrderID
		}
		assert.Equal(t, want, got, "adapter %s saw batches out of order", a.name)
	}
}

// Adapters write status fields on the orders they receive, so concurrent
// adapters must not share Order records.
func TestDispatcherCopiesBatchPerAdapter(t *testing.T) {
	q := NewQueue(4, discardLogger())
	d := NewDispatcher(q, discardLogger())

	a1 := &stampAdapter{name: "one"}
	a2 := &stampAdapter{name: "two"}
	d.Register(a1)
	d.Register(a2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.True(t, q.Enqueue(batchOf("x", "y")))

	require.Eventually(t, func() bool {
		return a1.batches() == 1 && a2.batches() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.True(t, d.Drain(time.Second))

	b1, b2 := a1.got[0], a2.got[0]
	require.Len(t, b1, 2)
	require.Len(t, b2, 2)
	for i := range b1 {
		assert.NotSame(t, b1[i], b2[i])
		assert.Equal(t, b1[i].OrderID, b2[i].OrderID)
		assert.Equal(t, "one", b1[i].AdapterName)
		assert.Equal(t, "two", b2[i].AdapterName)
	}
}
