package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// Adapter is a provider-specific order sink. SendOrders must never panic
// across the boundary and must handle its own status bookkeeping.
type Adapter interface {
	Name() string
	SendOrders(ctx context.Context, batch domain.Batch)
}

// Dispatcher continuously consumes batches from the queue and fans each one
// out to every registered adapter. Each adapter has its own lane, a buffered
// channel served by one worker goroutine, so batches reach every adapter in
// dequeue order, a slow provider never delays the others, and shutdown can
// await the stragglers. Adapters past the first receive deep copies of the
// batch; adapters write status fields on the orders they are handed.
type Dispatcher struct {
	queue    *Queue
	adapters []Adapter
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over the given queue.
func NewDispatcher(queue *Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Register adds an adapter to the fan-out set. Must be called before Run.
func (d *Dispatcher) Register(a Adapter) {
	d.adapters = append(d.adapters, a)
	d.logger.Info("registered adapter", slog.String("adapter", a.Name()))
}

// Run consumes batches until the context is cancelled. Adapter failures never
// affect other adapters and never abort the loop. On cancellation the lanes
// are closed and their workers drain whatever is still buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.adapters) == 0 {
		d.logger.Warn("no adapters registered")
	}

	lanes := make([]chan domain.Batch, len(d.adapters))
	for i, a := range d.adapters {
		a := a
		ch := make(chan domain.Batch, d.queue.Capacity())
		lanes[i] = ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for batch := range ch {
				d.deliver(ctx, a, batch)
			}
		}()
	}

	for {
		batch, ok := d.queue.Dequeue(ctx)
		if !ok {
			for _, ch := range lanes {
				close(ch)
			}
			d.logger.Info("dispatcher stopped")
			return nil
		}

		d.logger.Debug("dispatching batch",
			slog.Int("orders", len(batch)),
			slog.Int("adapters", len(d.adapters)),
		)
		for i, ch := range lanes {
			b := batch
			if i > 0 {
				b = batch.Clone()
			}
			ch <- b
		}
	}
}

// deliver hands one batch to one adapter, containing any panic so the lane
// keeps serving subsequent batches.
func (d *Dispatcher) deliver(ctx context.Context, a Adapter, batch domain.Batch) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("adapter panicked",
				slog.String("adapter", a.Name()),
				slog.Any("panic", r),
			)
		}
	}()
	a.SendOrders(ctx, batch)
}

// Drain waits for the adapter lanes to empty and their in-flight dispatches
// to finish, up to timeout. Lanes only close once Run has returned, so call
// it after cancellation. It returns false if the timeout elapsed with work
// still outstanding.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.logger.Warn("drain timeout, abandoning in-flight dispatches",
			slog.Duration("timeout", timeout),
		)
		return false
	}
}
