package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"freight/internal/domain/inbox"
	"freight/internal/domain/outbox"
	"freight/internal/domain/shipment"

	"github.com/google/uuid"
)

const producerName = "shipment-api"

type Transactor interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
}

type ShipmentRepository interface {
	Create(ctx context.Context, s *shipment.Shipment) error
	GetByID(ctx context.Context, id string) (*shipment.Shipment, error)
	GetForUpdate(ctx context.Context, id string) (*shipment.Shipment, error)
	Update(ctx context.Context, s *shipment.Shipment) error
}

type OutboxWriter interface {
	Create(ctx context.Context, event *outbox.Event) error
}

type OutboxReader interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error)
}

type InboxReader interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*inbox.Event, error)
}

// Cache is a byte cache keyed by string. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func cacheKey(id string) string {
	return fmt.Sprintf("shipment:%s", id)
}

// newChangeEvent captures one mutation for the outbox. before is nil for
// creations.
func newChangeEvent(before, after *shipment.Shipment, now time.Time) (*outbox.Event, error) {
	eventType := outbox.EventShipmentUpdated
	if before == nil {
		eventType = outbox.EventShipmentCreated
	}

	payload, err := json.Marshal(outbox.Change{Before: before, After: after})
	if err != nil {
		return nil, fmt.Errorf("marshal shipment change: %w", err)
	}

	return &outbox.Event{
		ID:            uuid.New().String(),
		EventType:     eventType,
		Payload:       payload,
		Status:        outbox.StatusNew,
		CorrelationID: after.ID,
		Producer:      producerName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// mutateShipment locks one shipment, applies change and records the
// before/after pair in the outbox within a single transaction.
func mutateShipment(
	ctx context.Context,
	txManager Transactor,
	shipments ShipmentRepository,
	events OutboxWriter,
	id string,
	now func() time.Time,
	change func(s *shipment.Shipment) error,
) (*shipment.Shipment, error) {
	var updated *shipment.Shipment

	err := txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, err := shipments.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}

		before := *current
		after := *current
		if err := change(&after); err != nil {
			return err
		}
		after.UpdatedAt = now()

		if err := shipments.Update(txCtx, &after); err != nil {
			return err
		}

		event, err := newChangeEvent(&before, &after, after.UpdatedAt)
		if err != nil {
			return err
		}
		if err := events.Create(txCtx, event); err != nil {
			return err
		}

		updated = &after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func invalidate(ctx context.Context, cache Cache, id string) {
	if cache == nil {
		return
	}
	// A stale entry expires on its own TTL.
	_ = cache.Delete(ctx, cacheKey(id))
}
