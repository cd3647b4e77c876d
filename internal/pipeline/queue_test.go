package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batchOf(ids ...string) domain.Batch {
	out := make(domain.Batch, len(ids))
	for i, id := range ids {
		out[i] = &domain.Order{OrderID: id}
	}
	return out
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4, discardLogger())

	require.True(t, q.Enqueue(batchOf("a")))
	require.True(t, q.Enqueue(batchOf("b")))
	assert.Equal(t, 2, q.Len())

	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", got[0].OrderID)

	got, ok = q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b", got[0].OrderID)
}

func TestQueueRejectsEmptyBatch(t *testing.T) {
	q := NewQueue(4, discardLogger())
	assert.False(t, q.Enqueue(nil))
	assert.False(t, q.Enqueue(domain.Batch{}))
	assert.Equal(t, 0, q.Len())
}

func TestQueueShedsWhenFull(t *testing.T) {
	q := NewQueue(1, discardLogger())

	var queued, dropped int
	q.OnEnqueue(func() { queued++ })
	q.OnDrop(func() { dropped++ })

	assert.True(t, q.Enqueue(batchOf("a")))
	assert.False(t, q.Enqueue(batchOf("b")))

	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, dropped)

	// The surviving batch is the first one.
	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", got[0].OrderID)
}

func TestDequeueReturnsOnCancel(t *testing.T) {
	q := NewQueue(4, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := NewQueue(0, discardLogger())
	assert.True(t, q.Enqueue(batchOf("a")))
}
