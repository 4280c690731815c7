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
	"freight/internal/discord"
	"freight/internal/infrastructure/postgres"
	"freight/internal/notify"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateNotifier(); err != nil {
		slog.Error("invalid notifier config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})).
		With("service", "notifier")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics Server
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("notifier metrics listening", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	subscriber, err := infraFactory.QueueSubscriber(ctx)
	if err != nil {
		logger.Error("failed to connect to job queue", "driver", cfg.Queue.Driver, "error", err)
		os.Exit(1)
	}

	discordClient, err := discord.NewClient(discord.Config{
		BaseURL:          cfg.Discord.BaseURL,
		Token:            cfg.Discord.BotToken,
		ChannelID:        cfg.Discord.ChannelID,
		MaxRetries:       cfg.Discord.MaxRetries,
		ServerErrorWait:  cfg.Discord.ServerErrorWait,
		MaxRateLimitWait: cfg.Discord.MaxRateLimitWait,
		RequestTimeout:   cfg.Discord.RequestTimeout,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to create discord client", "error", err)
		os.Exit(1)
	}

	consumer := notify.NewConsumer(
		postgres.NewShipmentRepository(pgPool),
		discordClient,
		notify.NewRenderer(nil),
		notify.ConsumerConfig{Throttle: cfg.Notifier.Throttle, Logger: logger},
	)
	runner := notify.NewRunner(subscriber, consumer, postgres.NewInboxRepository(pgPool), notify.RunnerConfig{
		Name:         cfg.Notifier.Name,
		MaxRetries:   cfg.Notifier.MaxRetries,
		RetryBackoff: cfg.Notifier.RetryBackoff,
		Logger:       logger,
	})

	logger.Info("notifier started",
		"queue_driver", cfg.Queue.Driver,
		"queue", infraFactory.QueueTarget(),
		"channel_id", cfg.Discord.ChannelID,
	)

	if err := runner.Run(ctx); err != nil {
		logger.Error("notifier stopped with error", "error", err)
		metricsSrv.Close()
		infraFactory.Close()
		os.Exit(1)
	}

	logger.Info("notifier exited")
}
