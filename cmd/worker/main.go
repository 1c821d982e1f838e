package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/property-desk/internal/bootstrap"
	"github.com/kirillkom/property-desk/internal/config"
	"github.com/kirillkom/property-desk/internal/core/ports"
	"github.com/kirillkom/property-desk/internal/observability/logging"
	"github.com/kirillkom/property-desk/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Hooks{
		OnBreaker: workerMetrics.ObserveBreaker,
		OnRetry:   workerMetrics.ObserveRetry,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_started", "poll_interval", cfg.WorkerPollInterval.String(), "batch_size", cfg.WorkerBatchSize)
	runRedelivery(ctx, app.Documents, workerMetrics, cfg.WorkerPollInterval, cfg.WorkerBatchSize)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_failed", "error", err)
	}
}

// runRedelivery sweeps undelivered signed documents until ctx is done.
func runRedelivery(ctx context.Context, retrier ports.DeliveryRetrier, m *metrics.WorkerMetrics, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweep(ctx, retrier, m, batch)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, retrier ports.DeliveryRetrier, m *metrics.WorkerMetrics, batch int) {
	m.StartSweep()
	started := time.Now()
	delivered, err := retrier.RedeliverPending(ctx, batch)
	m.FinishSweep(serviceName, delivered, time.Since(started), err)

	switch {
	case err != nil && ctx.Err() == nil:
		slog.Warn("redelivery_sweep_failed", "delivered", delivered, "error", err)
	case delivered > 0:
		slog.Info("redelivery_sweep", "delivered", delivered)
	}
}
