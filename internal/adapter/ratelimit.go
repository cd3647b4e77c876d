// Package adapter contains the provider-facing half of the pipeline: the
// fixed-window rate limiter, the grouping queue, the base HTTP dispatch with
// retry, and the per-provider payload mappers.
package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FixedWindow is a fixed-window token counter. The count resets at the start
// of every window of length period; an in-window overflow sleeps until the
// next window and retries. There is no fairness guarantee between waiters.
type FixedWindow struct {
	limit  int
	period time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewFixedWindow creates a limiter granting limit tokens per period. Invalid
// parameters are a configuration error and must be rejected at startup.
func NewFixedWindow(limit int, period time.Duration) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", limit)
	}
	if period <= 0 {
		return nil, fmt.Errorf("ratelimit: period must be positive, got %s", period)
	}
	return &FixedWindow{limit: limit, period: period}, nil
}

// Acquire blocks until n tokens are available in the current window or the
// context is cancelled. A nil receiver is a disabled limiter and acquires
// immediately.
func (f *FixedWindow) Acquire(ctx context.Context, n int) error {
	if f == nil {
		return nil
	}
	if n > f.limit {
		return fmt.Errorf("ratelimit: requested %d tokens exceeds window limit %d", n, f.limit)
	}

	for {
		f.mu.Lock()
		now := time.Now()
		if f.windowStart.IsZero() || now.Sub(f.windowStart) >= f.period {
			f.windowStart = now
			f.count = 0
		}
		if f.count+n <= f.limit {
			f.count += n
			f.mu.Unlock()
			return nil
		}
		wait := f.period - now.Sub(f.windowStart)
		f.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: acquire: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
