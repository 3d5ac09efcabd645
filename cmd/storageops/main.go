// Command storageops serves the status and priority endpoints of a storage
// router built from environment and YAML configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/storageops/backends"
	"github.com/jonwraymond/storageops/config"
	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/observe"
	"github.com/jonwraymond/storageops/storage"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.PathEnv+")")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "storageops: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) (err error) {
	// 1. Configuration
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Telemetry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obsCfg := cfg.ObserveConfig(version)
	obsCfg.Metrics.Registerer = registry

	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, obs.Shutdown(sctx))
	}()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return fmt.Errorf("init middleware: %w", err)
	}
	logger := obs.Logger()

	// 3. Backends, health monitor and router
	all, err := backends.NewAll(ctx, cfg.Backends)
	if err != nil {
		return err
	}

	mon := health.NewMonitor(cfg.MonitorConfig(),
		health.WithLogger(logger),
		health.WithMetrics(mw.Metrics()),
	)

	rc, err := cfg.RouterConfig()
	if err != nil {
		return err
	}
	router, err := storage.NewRouter(rc, all,
		storage.WithMonitor(mon),
		storage.WithMiddleware(mw),
		storage.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}

	if err := mon.CheckNow(ctx); err != nil {
		logger.Warn(ctx, "initial health check failed", observe.F("error", err.Error()))
	}
	mon.Start(ctx)
	defer mon.Stop()

	// 4. HTTP
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, mon)
	storage.RegisterHandlers(mux, router)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "storageops listening",
			observe.F("addr", cfg.Addr),
			observe.F("version", version),
			observe.F("backends", router.Priority()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
