package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"freight/internal/domain/job"
	"freight/internal/domain/outbox"
	"freight/internal/domain/shipment"
	"freight/internal/queue"
)

// ErrMalformedChange marks an outbox event that can never be turned into
// a job. Callers should drop it rather than retry.
var ErrMalformedChange = errors.New("malformed shipment change")

// Publisher turns shipment lifecycle changes into notification jobs.
// It publishes at most one job per change and never retries: a failed
// publish is returned so the outbox poller can put the change back.
type Publisher struct {
	queue    queue.Publisher
	producer string
	logger   *slog.Logger
}

func NewPublisher(q queue.Publisher, producer string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		queue:    q,
		producer: producer,
		logger:   logger.With("component", "publisher"),
	}
}

// Handle decodes one outbox event and routes it to OnCreate or OnUpdate.
// Event types it does not know are ignored.
func (p *Publisher) Handle(ctx context.Context, e *outbox.Event) error {
	switch e.EventType {
	case outbox.EventShipmentCreated, outbox.EventShipmentUpdated:
	default:
		p.logger.Debug("ignoring outbox event", "event_id", e.ID, "type", e.EventType)
		return nil
	}

	var change outbox.Change
	if err := json.Unmarshal(e.Payload, &change); err != nil {
		return fmt.Errorf("%w: event %s: %v", ErrMalformedChange, e.ID, err)
	}
	if change.After == nil || change.After.ID == "" {
		return fmt.Errorf("%w: event %s has no shipment", ErrMalformedChange, e.ID)
	}

	if e.EventType == outbox.EventShipmentCreated {
		return p.OnCreate(ctx, change.After, e.ID)
	}
	return p.OnUpdate(ctx, change.Before, change.After, e.ID)
}

// OnCreate always enqueues a CREATE job: every new shipment is announced.
func (p *Publisher) OnCreate(ctx context.Context, after *shipment.Shipment, causationID string) error {
	return p.publish(ctx, job.NewCreate(after.ID), causationID)
}

// OnUpdate enqueues an UPDATE job when the channel message already
// exists and something it shows has changed. Until the first CREATE has
// stored its id there is nothing to edit; the consumer re-renders after
// storing the id if the record moved in the meantime.
func (p *Publisher) OnUpdate(ctx context.Context, before, after *shipment.Shipment, causationID string) error {
	if after.ExternalMessageID == "" {
		changesSkipped.WithLabelValues("no_message_yet").Inc()
		p.logger.Debug("skipping update, message not created yet", "shipment_id", after.ID)
		return nil
	}
	if !shipment.NotifyWorthyChange(before, after) {
		changesSkipped.WithLabelValues("not_notify_worthy").Inc()
		p.logger.Debug("skipping update, nothing visible changed", "shipment_id", after.ID)
		return nil
	}
	return p.publish(ctx, job.NewUpdate(after.ID, after.ExternalMessageID), causationID)
}

func (p *Publisher) publish(ctx context.Context, j job.Job, causationID string) error {
	key, value, err := queue.Encode(j, p.producer, causationID)
	if err != nil {
		return err
	}
	if err := p.queue.Publish(ctx, key, value); err != nil {
		return fmt.Errorf("publish %s job for %s: %w", j.Type, j.RecordID, err)
	}

	jobsPublished.WithLabelValues(string(j.Type)).Inc()
	p.logger.Info("notification job enqueued", "type", j.Type, "shipment_id", j.RecordID, "causation_id", causationID)
	return nil
}
