package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iamansin/Stoxxo-Script/internal/domain"
)

// maxRetries is the number of immediate retries after the first attempt for
// transient failures (429, 5xx, timeout).
const maxRetries = 1

// Recorder persists one structured record per dispatched order.
type Recorder interface {
	Record(provider string, o *domain.Order)
}

// OrderMapper maps one order to its per-webhook requests. Implemented by
// per-order adapters.
type OrderMapper interface {
	MapOrder(o *domain.Order) ([]Request, error)
}

// BatchMapper packs a whole batch into provider payloads sharing one base
// URL. Implemented by grouping adapters.
type BatchMapper interface {
	MapBatch(batch domain.Batch) ([]domain.Payload, string, error)
}

// Request is one mapped (payload, destination) pair.
type Request struct {
	Payload domain.Payload
	URL     string
}

// Options configures the provider-independent half of an adapter.
type Options struct {
	Name       string
	Method     string // http.MethodGet or http.MethodPost
	Timeout    time.Duration
	Limiter    *FixedWindow  // nil = disabled
	OrderDelay time.Duration // 0 = disabled; also the inter-batch delay in grouped mode
	Grouping   bool
	GroupLimit int
}

// Base carries the behavior shared by all adapters: dispatch strategy
// selection, HTTP send with retry, status aggregation, and log-sink
// bookkeeping. Specializations embed it and supply a mapper.
type Base struct {
	name    string
	method  string
	client  *http.Client
	limiter *FixedWindow
	delay   time.Duration
	sink    Recorder
	logger  *slog.Logger
	active  bool

	grouping    bool
	gq          *groupQueue
	workerOnce  sync.Once
	workerDone  chan struct{}
	workerCtx   context.Context
	stopWorker  context.CancelFunc
	orderMapper OrderMapper
	batchMapper BatchMapper

	// OnResult, when set, is invoked with each order's final status.
	OnResult func(provider string, status domain.OrderStatus)
}

func newBase(opts Options, sink Recorder, logger *slog.Logger) *Base {
	workerCtx, stopWorker := context.WithCancel(context.Background())
	b := &Base{
		name:       opts.Name,
		method:     opts.Method,
		client:     &http.Client{Timeout: opts.Timeout},
		limiter:    opts.Limiter,
		delay:      opts.OrderDelay,
		sink:       sink,
		logger:     logger.With(slog.String("component", "adapter"), slog.String("adapter", opts.Name)),
		active:     true,
		grouping:   opts.Grouping,
		workerDone: make(chan struct{}),
		workerCtx:  workerCtx,
		stopWorker: stopWorker,
	}
	if opts.Grouping {
		b.gq = newGroupQueue(opts.GroupLimit)
	}
	b.logger.Info("adapter initialized",
		slog.String("method", opts.Method),
		slog.Bool("grouping", opts.Grouping),
	)
	return b
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// SetActive toggles the adapter. An inactive adapter fails every order.
func (b *Base) SetActive(active bool) { b.active = active }

// SendOrders dispatches one batch according to the configured strategy. In
// grouped mode it only enqueues and returns with every order still pending;
// final statuses are applied asynchronously by the grouping worker.
func (b *Base) SendOrders(ctx context.Context, batch domain.Batch) {
	if !b.active {
		b.logger.Warn("adapter inactive, skipping dispatch", slog.Int("orders", len(batch)))
		for _, o := range batch {
			b.finish(o, domain.StatusFailed, domain.ErrAdapterInactive.Error(), nil)
		}
		return
	}

	if b.grouping {
		b.workerOnce.Do(func() { go b.runWorker() })
		b.gq.enqueue(batch)
		return
	}

	b.logger.Info("dispatching orders", slog.Int("orders", len(batch)))

	if b.delay > 0 {
		for i, o := range batch {
			if err := b.limiter.Acquire(ctx, 1); err != nil {
				b.finish(o, domain.StatusFailed, err.Error(), nil)
				continue
			}
			b.processOrder(ctx, o)
			if i < len(batch)-1 {
				sleepCtx(ctx, b.delay)
			}
		}
		return
	}

	var wg sync.WaitGroup
	for _, o := range batch {
		if err := b.limiter.Acquire(ctx, 1); err != nil {
			b.finish(o, domain.StatusFailed, err.Error(), nil)
			continue
		}
		o := o
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.processOrder(ctx, o)
		}()
	}
	wg.Wait()
}

// processOrder maps one order and sends it to every configured webhook
// concurrently, then aggregates the per-URL outcomes into one status.
func (b *Base) processOrder(ctx context.Context, o *domain.Order) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("adapter internal error",
				slog.String("order_id", o.OrderID),
				slog.Any("panic", r),
			)
			b.finish(o, domain.StatusFailed, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	if b.orderMapper == nil {
		b.finish(o, domain.StatusFailed, "adapter has no per-order mapping", nil)
		return
	}

	reqs, err := b.orderMapper.MapOrder(o)
	if err != nil {
		b.logger.Error("order mapping failed",
			slog.String("order_id", o.OrderID),
			slog.String("error", err.Error()),
		)
		b.finish(o, domain.StatusFailed, "Mapping failed: "+err.Error(), nil)
		return
	}

	attempt := time.Now()
	errs := b.sendAll(ctx, reqs)

	n := len(reqs)
	sent := n - len(errs)
	switch {
	case len(errs) == 0:
		o.SentTime = &attempt
		b.finish(o, domain.StatusSent, "", reqs[0].Payload)
	case sent > 0:
		msg := fmt.Sprintf("Sent to %d/%d URLs. Errors: %s", sent, n, strings.Join(errs, "; "))
		b.finish(o, domain.StatusFailed, msg, reqs[0].Payload)
	default:
		msg := "Failed to send to all URLs. Errors: " + strings.Join(errs, "; ")
		b.finish(o, domain.StatusFailed, msg, reqs[0].Payload)
	}
}

// sendAll issues every request concurrently and returns the collected error
// strings.
func (b *Base) sendAll(ctx context.Context, reqs []Request) []string {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []string
	)
	for _, r := range reqs {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.sendWithRetry(ctx, r.Payload, r.URL); err != nil {
				mu.Lock()
				errs = append(errs, err.Error())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

// finish applies the final status, records it with the log sink, and fires
// the result hook. Status transitions are monotonic: an order already
// resolved is never rewound.
func (b *Base) finish(o *domain.Order, status domain.OrderStatus, errMsg string, mapped domain.Payload) {
	o.Status = status
	o.ErrorMessage = errMsg
	o.AdapterName = b.name
	if mapped != nil {
		o.MappedOrder = mapped
	}
	b.sink.Record(b.name, o)
	if b.OnResult != nil {
		b.OnResult(b.name, status)
	}
}

// runWorker is the grouping worker loop: dequeue a batch, take one rate
// token, map, send, apply the aggregate status, delay, repeat. It exits when
// the queue is closed and drained. A crash is logged and the worker is not
// respawned; grouped dispatch then requires a restart.
func (b *Base) runWorker() {
	defer close(b.workerDone)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("grouping worker crashed, grouped dispatch halted until restart",
				slog.Any("panic", r),
			)
		}
	}()

	b.logger.Info("grouping worker started")
	ctx := b.workerCtx
	for {
		batch := b.gq.dequeueBatch()
		if len(batch) == 0 {
			b.logger.Info("grouping worker stopped")
			return
		}
		if err := b.limiter.Acquire(ctx, 1); err != nil {
			b.failBatch(batch, err.Error())
			continue
		}
		b.dispatchGroup(ctx, batch)
		if b.delay > 0 {
			sleepCtx(ctx, b.delay)
		}
	}
}

// dispatchGroup sends one grouped batch. The batch is a unit: if any webhook
// send fails the whole batch is failed, otherwise every order is marked sent.
func (b *Base) dispatchGroup(ctx context.Context, batch domain.Batch) {
	if b.batchMapper == nil {
		b.failBatch(batch, "adapter has no batch mapping")
		return
	}

	payloads, baseURL, err := b.batchMapper.MapBatch(batch)
	if err != nil {
		b.logger.Error("batch mapping failed", slog.String("error", err.Error()))
		b.failBatch(batch, "Mapping failed: "+err.Error())
		return
	}

	reqs := make([]Request, len(payloads))
	for i, p := range payloads {
		reqs[i] = Request{Payload: p, URL: baseURL}
	}

	attempt := time.Now()
	errs := b.sendAll(ctx, reqs)

	if len(errs) > 0 {
		msg := "Failed grouped dispatch. Errors: " + strings.Join(errs, "; ")
		for i, o := range batch {
			var mapped domain.Payload
			if i == 0 {
				mapped = payloads[0]
			}
			b.finish(o, domain.StatusFailed, msg, mapped)
		}
		return
	}

	for i, o := range batch {
		o.SentTime = &attempt
		var mapped domain.Payload
		if i == 0 {
			mapped = payloads[0]
		}
		b.finish(o, domain.StatusSent, "", mapped)
	}
}

func (b *Base) failBatch(batch domain.Batch, msg string) {
	for _, o := range batch {
		b.finish(o, domain.StatusFailed, msg, nil)
	}
}

// Close shuts the grouping queue (if any) and waits for the worker to drain,
// bounded by timeout. If the worker is still busy when the timeout elapses,
// for example parked in a rate-limiter window, its context is cancelled so
// it fails the remaining batches and exits instead of lingering.
func (b *Base) Close(timeout time.Duration) {
	if !b.grouping {
		b.stopWorker()
		return
	}
	b.gq.close()
	started := true
	b.workerOnce.Do(func() { started = false; close(b.workerDone) })
	if !started {
		b.stopWorker()
		return
	}
	select {
	case <-b.workerDone:
		b.stopWorker()
		return
	case <-time.After(timeout):
		b.logger.Warn("drain timed out, cancelling grouping worker")
	}
	b.stopWorker()
	<-b.workerDone
}

// sendWithRetry issues one HTTP request with the provider retry policy:
// HTTP 200 succeeds; 429 honors Retry-After (default 1s) and retries once;
// 5xx and timeouts retry once; any other status or a transport error fails
// immediately.
func (b *Base) sendWithRetry(ctx context.Context, payload domain.Payload, url string) error {
	var lastErr string
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			b.logger.Info("retrying request", slog.String("url", url), slog.Int("attempt", attempt))
		}

		resp, err := b.do(ctx, payload, url)
		if err != nil {
			if isTimeout(err) {
				lastErr = "Request timeout"
				continue
			}
			return fmt.Errorf("request error: %w", err)
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := time.Second
			if s := resp.Header.Get("Retry-After"); s != "" {
				if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
			b.logger.Warn("rate limit hit", slog.Duration("retry_after", retryAfter))
			if attempt < maxRetries {
				sleepCtx(ctx, retryAfter)
				continue
			}
			return errors.New("Rate limit exceeded")

		case resp.StatusCode >= 500:
			if attempt < maxRetries {
				continue
			}
			return fmt.Errorf("Server error: %d", resp.StatusCode)

		default:
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
	}
	if lastErr == "" {
		lastErr = "Max retries exceeded"
	}
	return errors.New(lastErr)
}

// do sends the payload: GET as a query string, POST as the payload's
// "payload" entry in a text/plain body.
func (b *Base) do(ctx context.Context, payload domain.Payload, url string) (*http.Response, error) {
	switch b.method {
	case http.MethodGet:
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+sep+payload.EncodeNumbered(), nil)
		if err != nil {
			return nil, err
		}
		return b.client.Do(req)

	case http.MethodPost:
		body, _ := payload.Get("payload")
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain")
		return b.client.Do(req)

	default:
		return nil, fmt.Errorf("unsupported HTTP method %q", b.method)
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
