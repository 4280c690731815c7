package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"freight/internal/domain/outbox"
	"freight/internal/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_events_published_total",
		Help: "The total number of outbox events handed to the change publisher",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_events_dropped_total",
		Help: "Outbox events that could never be published and were marked processed",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
)

// ChangeHandler publishes one outbox event. notify.Publisher satisfies it.
type ChangeHandler interface {
	Handle(ctx context.Context, e *outbox.Event) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	SendTimeout  time.Duration
	Logger       *slog.Logger
}

type OutboxPoller struct {
	outboxRepo   outbox.Repository
	handler      ChangeHandler
	pollInterval time.Duration
	batchSize    int
	sendTimeout  time.Duration
	logger       *slog.Logger
}

func NewOutboxPoller(outboxRepo outbox.Repository, handler ChangeHandler, cfg Config) *OutboxPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OutboxPoller{
		outboxRepo:   outboxRepo,
		handler:      handler,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		sendTimeout:  cfg.SendTimeout,
		logger:       cfg.Logger.With("component", "outbox_poller"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("outbox poller started", "interval", p.pollInterval, "batch_size", p.batchSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("failed to process batch", "error", err)
			}
		}
	}
}

// ProcessBatch claims up to one batch of new outbox events and publishes
// them in order. It returns how many events were claimed.
func (p *OutboxPoller) ProcessBatch(ctx context.Context) (int, error) {
	events, err := p.outboxRepo.FetchBatch(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var processedIDs []string
	var failedIDs []string

	for _, e := range events {
		sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
		err := p.handler.Handle(sendCtx, e)
		cancel()

		switch {
		case err == nil:
			eventsPublished.Inc()
			processedIDs = append(processedIDs, e.ID)
		case errors.Is(err, notify.ErrMalformedChange):
			p.logger.Error("dropping malformed outbox event", "event_id", e.ID, "error", err)
			eventsDropped.Inc()
			processedIDs = append(processedIDs, e.ID)
		default:
			p.logger.Warn("failed to publish outbox event", "event_id", e.ID, "error", err)
			publishErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
		}
	}

	if len(processedIDs) > 0 {
		if err := p.outboxRepo.MarkProcessed(ctx, processedIDs); err != nil {
			return len(events), err
		}
		p.logger.Debug("outbox events processed", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := p.outboxRepo.MarkFailed(ctx, failedIDs); err != nil {
			p.logger.Error("failed to mark events as failed", "error", err)
		}
	}

	return len(events), nil
}
