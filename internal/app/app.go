// Package app provides the top-level application lifecycle for the order
// forwarder. It wires together all dependencies (strategy cache, log sink,
// adapters, queue, dispatcher, tailer) and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iamansin/Stoxxo-Script/internal/config"
	"github.com/iamansin/Stoxxo-Script/internal/metrics"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the tailer
// and dispatcher goroutines, and blocks until the context is cancelled. On
// return the pipeline is drained before resources are released.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_path", a.cfg.Monitor.LogPath),
		slog.String("target", a.cfg.Monitor.TargetFilename),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Tailer.Run(gctx)
	})
	g.Go(func() error {
		return deps.Dispatcher.Run(gctx)
	})
	if addr := a.cfg.System.MetricsAddr; addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr, a.logger)
		})
	}

	// SIGHUP reloads the strategy mapping file without a restart.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := deps.Cache.Reload(); err != nil {
					a.logger.Error("strategy cache reload failed", slog.String("error", err.Error()))
				} else {
					a.logger.Info("strategy cache reloaded")
				}
			}
		}
	})

	runErr := g.Wait()

	// Drain in dependency order: the tailer has stopped producing, so close
	// the grouping workers first, then wait for in-flight dispatches.
	drain := a.cfg.System.DrainTimeout.Duration
	for _, b := range deps.closable {
		b.Close(drain)
	}
	if !deps.Dispatcher.Drain(drain) {
		a.logger.Warn("pipeline did not drain before timeout")
	}

	return runErr
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
