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

	"freight/internal/application/factories/infrastructure"
	"freight/internal/config"
	"freight/internal/infrastructure/postgres"
	"freight/internal/notify"
	"freight/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})).
		With("service", "worker")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("worker metrics listening", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	// Infrastructure
	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	jobs, err := infraFactory.QueuePublisher(ctx)
	if err != nil {
		logger.Error("failed to connect to job queue", "driver", cfg.Queue.Driver, "error", err)
		os.Exit(1)
	}

	publisher := notify.NewPublisher(jobs, "shipment-worker", logger)
	poller := worker.NewOutboxPoller(postgres.NewOutboxRepository(pgPool), publisher, worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		SendTimeout:  cfg.Worker.SendTimeout,
		Logger:       logger,
	})

	logger.Info("worker started", "queue_driver", cfg.Queue.Driver, "queue", infraFactory.QueueTarget())

	if err := poller.Run(ctx); err != nil {
		logger.Error("worker stopped with error", "error", err)
	}

	logger.Info("worker exited")
}
