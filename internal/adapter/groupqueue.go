package adapter

import (
	"sync"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// groupQueue accumulates individual orders for an adapter's grouping worker
// and hands them back in size-bounded batches. Enqueue order is preserved
// across calls.
type groupQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	orders []*domain.Order
	limit  int
	closed bool
}

func newGroupQueue(limit int) *groupQueue {
	if limit <= 0 {
		limit = 1
	}
	q := &groupQueue{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue appends the batch and wakes the worker.
func (q *groupQueue) enqueue(batch domain.Batch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.orders = append(q.orders, batch...)
	q.cond.Signal()
}

// dequeueBatch pops up to limit orders, blocking while the queue is empty and
// open. It returns an empty batch once the queue is closed and drained.
func (q *groupQueue) dequeueBatch() domain.Batch {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.orders) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.orders) == 0 {
		return nil
	}
	n := q.limit
	if n > len(q.orders) {
		n = len(q.orders)
	}
	batch := make(domain.Batch, n)
	copy(batch, q.orders[:n])
	q.orders = q.orders[n:]
	return batch
}

// close marks the queue closed and wakes any waiter. Pending orders remain
// dequeueable so the worker can drain before exiting.
func (q *groupQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
