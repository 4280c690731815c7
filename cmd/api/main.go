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

	"freight/internal/api"
	"freight/internal/application/factories/infrastructure"
	"freight/internal/catalog"
	"freight/internal/config"
	"freight/internal/infrastructure/postgres"
	redisInfra "freight/internal/infrastructure/redis"
	"freight/internal/usecase"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})).
		With("service", "api")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	cache := redisInfra.NewCache(redisClient)

	// Repositories
	shipmentRepo := postgres.NewShipmentRepository(pgPool)
	outboxRepo := postgres.NewOutboxRepository(pgPool)
	inboxRepo := postgres.NewInboxRepository(pgPool)
	txManager := postgres.NewTxManager(pgPool)

	catalogClient, err := catalog.NewClient(catalog.Config{BaseURL: cfg.Catalog.BaseURL, Timeout: cfg.Catalog.Timeout})
	if err != nil {
		logger.Error("invalid catalog config", "error", err)
		os.Exit(1)
	}

	// UseCases
	handlers := api.NewHandlers(api.UseCases{
		CreateShipment: usecase.NewCreateShipment(txManager, shipmentRepo, outboxRepo),
		GetShipment:    usecase.NewGetShipment(cache, shipmentRepo, cfg.Redis.CacheTTL, logger),
		UpdateStatus:   usecase.NewUpdateStatus(txManager, shipmentRepo, outboxRepo, cache),
		AssignDriver:   usecase.NewAssignDriver(txManager, shipmentRepo, outboxRepo, cache),
		CancelShipment: usecase.NewCancelShipment(txManager, shipmentRepo, outboxRepo, cache),
		GetTimeline:    usecase.NewGetTimeline(shipmentRepo, outboxRepo, inboxRepo),
		GetCargo:       usecase.NewGetCargo(cache, catalogClient, cfg.Catalog.CargoMaxAge, logger),
		ListClaims:     usecase.NewListClaims(catalogClient, cfg.Catalog.ClaimsPageSize),
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewRouter(handlers, redisClient),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exiting")
}
