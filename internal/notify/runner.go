package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"freight/internal/discord"
	domainEvent "freight/internal/domain/event"
	"freight/internal/queue"
)

// Inbox remembers which queue messages were fully handled.
type Inbox interface {
	IsProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer string, msg domainEvent.Message) error
}

type RunnerConfig struct {
	// Name identifies this consumer in the inbox.
	Name string
	// MaxRetries bounds reprocessing of a job whose shipment could not be
	// loaded. The backoff doubles from RetryBackoff.
	MaxRetries   int
	RetryBackoff time.Duration
	Wait         discord.WaitFunc
	Logger       *slog.Logger
}

// Runner drains a subscriber one message at a time. Ordering and the
// throttle both depend on there being exactly one Runner per queue.
type Runner struct {
	subscriber queue.Subscriber
	consumer   *Consumer
	inbox      Inbox
	cfg        RunnerConfig
	logger     *slog.Logger
}

// NewRunner builds a Runner. inbox may be nil, in which case duplicate
// deliveries are processed again.
func NewRunner(subscriber queue.Subscriber, consumer *Consumer, inbox Inbox, cfg RunnerConfig) *Runner {
	if cfg.Name == "" {
		cfg.Name = "shipment-notifier"
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Wait == nil {
		cfg.Wait = discord.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		subscriber: subscriber,
		consumer:   consumer,
		inbox:      inbox,
		cfg:        cfg,
		logger:     logger.With("component", "runner", "consumer", cfg.Name),
	}
}

// Run blocks until ctx is cancelled or the subscriber is closed for
// good. Messages interrupted by cancellation are left unacknowledged so
// the broker redelivers them.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("notification consumer started")

	for {
		msg, err := r.subscriber.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("notification consumer stopped")
				return nil
			}
			if errors.Is(err, queue.ErrClosed) {
				return fmt.Errorf("receive: %w", err)
			}
			r.logger.Error("failed to receive message", "error", err)
			_ = r.cfg.Wait(ctx, time.Second)
			continue
		}

		r.handle(ctx, msg)
		if ctx.Err() != nil {
			r.logger.Info("notification consumer stopped")
			return nil
		}

		if err := msg.Ack(ctx); err != nil {
			r.logger.Error("failed to ack message", "error", err)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg queue.Message) {
	envelope, j, err := queue.Decode(msg.Value)
	if err != nil {
		r.logger.Error("dropping undecodable message", "error", err)
		return
	}

	if r.inbox != nil {
		seen, err := r.inbox.IsProcessed(ctx, r.cfg.Name, envelope.ID)
		if err != nil {
			r.logger.Warn("inbox lookup failed, processing anyway", "event_id", envelope.ID, "error", err)
		} else if seen {
			duplicateDeliveries.Inc()
			r.logger.Info("skipping duplicate delivery", "event_id", envelope.ID, "shipment_id", j.RecordID)
			return
		}
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			backoff := r.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			r.logger.Info("retrying job", "attempt", attempt, "max", r.cfg.MaxRetries, "backoff", backoff)
			if err := r.cfg.Wait(ctx, backoff); err != nil {
				return
			}
		}

		_, err = r.consumer.ProcessJob(ctx, j)
		if err == nil || !IsRetryable(err) || attempt >= r.cfg.MaxRetries {
			break
		}
		r.logger.Warn("job failed, will retry", "shipment_id", j.RecordID, "error", err)
	}

	if err != nil {
		r.logger.Error("job not delivered", "event_id", envelope.ID, "type", j.Type, "shipment_id", j.RecordID, "error", err)
		return
	}

	if r.inbox != nil {
		if err := r.inbox.MarkProcessed(ctx, r.cfg.Name, envelope); err != nil {
			r.logger.Error("failed to record processed message", "event_id", envelope.ID, "error", err)
		}
	}
}
