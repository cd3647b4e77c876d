// Package metrics exposes Prometheus counters for the ingestion pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline counters. A nil *Metrics is a valid no-op
// receiver so callers never need to guard instrumentation sites.
type Metrics struct {
	linesRead      prometheus.Counter
	ordersParsed   prometheus.Counter
	ordersRejected prometheus.Counter
	batchesQueued  prometheus.Counter
	batchesDropped prometheus.Counter
	dispatched     *prometheus.CounterVec
}

// New registers the counter set on the default registry.
func New() *Metrics {
	return &Metrics{
		linesRead: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stoxxo_lines_read_total",
			Help: "Log lines read from the monitored file.",
		}),
		ordersParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stoxxo_orders_parsed_total",
			Help: "Lines successfully parsed into orders.",
		}),
		ordersRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stoxxo_orders_rejected_total",
			Help: "Lines rejected during parsing or validation.",
		}),
		batchesQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stoxxo_batches_enqueued_total",
			Help: "Order batches accepted by the dispatch queue.",
		}),
		batchesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stoxxo_batches_dropped_total",
			Help: "Order batches dropped because the dispatch queue was full.",
		}),
		dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stoxxo_orders_dispatched_total",
			Help: "Final per-order dispatch outcomes by provider and status.",
		}, []string{"provider", "status"}),
	}
}

func (m *Metrics) LineRead() {
	if m != nil {
		m.linesRead.Inc()
	}
}

func (m *Metrics) OrderParsed() {
	if m != nil {
		m.ordersParsed.Inc()
	}
}

func (m *Metrics) OrderRejected() {
	if m != nil {
		m.ordersRejected.Inc()
	}
}

func (m *Metrics) BatchQueued() {
	if m != nil {
		m.batchesQueued.Inc()
	}
}

func (m *Metrics) BatchDropped() {
	if m != nil {
		m.batchesDropped.Inc()
	}
}

func (m *Metrics) OrderDispatched(provider, status string) {
	if m != nil {
		m.dispatched.WithLabelValues(provider, status).Inc()
	}
}

// Serve runs a /metrics endpoint on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info("metrics listener started", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
