// Package pipeline carries order batches from the tailer to the adapters: a
// bounded FIFO queue on the ingress side and a fan-out dispatcher on the
// egress side.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// Queue is a bounded FIFO of order batches. The producer side sheds load:
// when the buffer is full the batch is dropped with a warning rather than
// blocking the filesystem-watch goroutine.
type Queue struct {
	ch      chan domain.Batch
	logger  *slog.Logger
	onDrop  func()
	onQueue func()
}

// NewQueue creates a Queue with the given capacity (number of batches).
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{
		ch:     make(chan domain.Batch, capacity),
		logger: logger.With(slog.String("component", "queue")),
	}
}

// OnDrop registers a hook invoked whenever a batch is shed, used for metrics.
func (q *Queue) OnDrop(fn func()) { q.onDrop = fn }

// OnEnqueue registers a hook invoked on every accepted batch.
func (q *Queue) OnEnqueue(fn func()) { q.onQueue = fn }

// Enqueue attempts a non-blocking insert. It returns false when the queue is
// full and the batch was dropped.
func (q *Queue) Enqueue(batch domain.Batch) bool {
	if len(batch) == 0 {
		return false
	}
	select {
	case q.ch <- batch:
		if q.onQueue != nil {
			q.onQueue()
		}
		return true
	default:
		q.logger.Warn("order queue full, dropping batch", slog.Int("orders", len(batch)))
		if q.onDrop != nil {
			q.onDrop()
		}
		return false
	}
}

// Dequeue blocks until a batch is available or the context is cancelled. The
// boolean is false on cancellation.
func (q *Queue) Dequeue(ctx context.Context) (domain.Batch, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case batch := <-q.ch:
		return batch, true
	}
}

// Len reports the number of buffered batches.
func (q *Queue) Len() int { return len(q.ch) }

// Capacity reports the buffer size the queue was created with.
func (q *Queue) Capacity() int { return cap(q.ch) }
