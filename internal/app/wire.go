package app

import (
	"fmt"
	"log/slog"

	"github.com/iamansin/Stoxxo-Script/internal/adapter"
	"github.com/iamansin/Stoxxo-Script/internal/cache"
	"github.com/iamansin/Stoxxo-Script/internal/config"
	"github.com/iamansin/Stoxxo-Script/internal/domain"
	"github.com/iamansin/Stoxxo-Script/internal/logsink"
	"github.com/iamansin/Stoxxo-Script/internal/metrics"
	"github.com/iamansin/Stoxxo-Script/internal/parse"
	"github.com/iamansin/Stoxxo-Script/internal/pipeline"
	"github.com/iamansin/Stoxxo-Script/internal/tail"
)

// Dependencies bundles everything the application lifecycle needs to run the
// pipeline. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Cache      *cache.Cache
	Sink       *logsink.Sink
	Metrics    *metrics.Metrics
	Queue      *pipeline.Queue
	Dispatcher *pipeline.Dispatcher
	Tailer     *tail.Tailer

	// Adapter bases that may run an internal grouping worker; drained on
	// shutdown before the dispatcher.
	closable []*adapter.Base
}

// Wire constructs all concrete dependencies from the given configuration and
// returns them together with a cleanup function that should be called on
// shutdown to release resources.
func Wire(cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Strategy cache ---
	strat, err := cache.Load(cfg.Cache.Path, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: strategy cache: %w", err)
	}
	deps.Cache = strat

	// --- Log sink ---
	sink, err := logsink.New(cfg.System.OutputPath, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: log sink: %w", err)
	}
	closers = append(closers, func() { _ = sink.Close() })
	deps.Sink = sink

	// --- Metrics ---
	m := metrics.New()
	deps.Metrics = m

	// --- Queue and dispatcher ---
	queue := pipeline.NewQueue(cfg.System.QueueSize, logger)
	queue.OnEnqueue(m.BatchQueued)
	queue.OnDrop(m.BatchDropped)
	deps.Queue = queue

	dispatcher := pipeline.NewDispatcher(queue, logger)
	deps.Dispatcher = dispatcher

	// --- Adapters ---
	if cfg.Adapters.Tradetron.Enabled {
		limiter, err := buildLimiter(&cfg.Adapters.Tradetron)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: tradetron rate limiter: %w", err)
		}
		t := adapter.NewTradetron(adapter.Options{
			Timeout:    cfg.Adapters.Tradetron.Timeout.Duration,
			Limiter:    limiter,
			OrderDelay: cfg.Adapters.Tradetron.OrderDelay.Duration,
			GroupLimit: cfg.Adapters.Tradetron.GroupLimit,
		}, cfg.Adapters.Tradetron.BaseURL, strat, cfg.Adapters.Tradetron.CounterSize, sink, logger)
		t.OnResult = func(provider string, status domain.OrderStatus) {
			m.OrderDispatched(provider, string(status))
		}
		dispatcher.Register(t)
		deps.closable = append(deps.closable, t.Base)
	}
	if cfg.Adapters.Algotest.Enabled {
		limiter, err := buildLimiter(&cfg.Adapters.Algotest)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: algotest rate limiter: %w", err)
		}
		a := adapter.NewAlgoTest(adapter.Options{
			Timeout:    cfg.Adapters.Algotest.Timeout.Duration,
			Limiter:    limiter,
			OrderDelay: cfg.Adapters.Algotest.OrderDelay.Duration,
		}, strat, strat, sink, logger)
		a.OnResult = func(provider string, status domain.OrderStatus) {
			m.OrderDispatched(provider, string(status))
		}
		dispatcher.Register(a)
		deps.closable = append(deps.closable, a.Base)
	}

	// --- Trading-hours gate and tailer ---
	startMin, endMin := cfg.Monitor.TradingWindow()
	preStart, postEnd := cfg.Monitor.ExtendedWindow()
	hours := tail.NewHoursValidator(tail.HoursConfig{
		AllowedWeekdays: cfg.Monitor.AllowedWeekdays,
		TradingStart:    startMin,
		TradingEnd:      endMin,
		EnablePremarket: cfg.Monitor.AllowPremarket,
		PremarketStart:  preStart,
		EnablePostmark:  cfg.Monitor.AllowPostmarket,
		PostmarketEnd:   postEnd,
	})

	parser := parse.NewParser(strat, cfg.Monitor.MinQuantity, cfg.Monitor.MaxQuantity, logger)
	tailer, err := tail.New(
		cfg.Monitor.LogPath,
		cfg.Monitor.TargetFilename,
		hours,
		&countingParser{parser: parser, metrics: m},
		queue,
		logger,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: tailer: %w", err)
	}
	deps.Tailer = tailer

	return deps, cleanup, nil
}

func buildLimiter(a *config.AdapterConfig) (*adapter.FixedWindow, error) {
	if !a.RateLimiterActive {
		return nil, nil
	}
	return adapter.NewFixedWindow(a.RateLimit, a.RateLimitPeriod.Duration)
}

// countingParser wraps the parser with per-line counters.
type countingParser struct {
	parser  *parse.Parser
	metrics *metrics.Metrics
}

func (c *countingParser) ParseLine(line string) (*domain.Order, bool) {
	c.metrics.LineRead()
	o, ok := c.parser.ParseLine(line)
	if ok {
		c.metrics.OrderParsed()
	} else {
		c.metrics.OrderRejected()
	}
	return o, ok
}
