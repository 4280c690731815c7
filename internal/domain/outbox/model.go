package outbox

import (
	"context"
	"time"

	"freight/internal/domain/shipment"
)

const (
	EventShipmentCreated = "ShipmentCreated"
	EventShipmentUpdated = "ShipmentUpdated"
)

const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Event is a shipment change captured in the same transaction as the
// mutation itself. Payload holds an encoded Change.
type Event struct {
	ID            string    `json:"id"`
	EventType     string    `json:"event_type"`
	Payload       []byte    `json:"payload"`
	Status        string    `json:"status"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id"`
	Producer      string    `json:"producer"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Change is the before/after snapshot pair of one mutation. Before is
// nil for creations.
type Change struct {
	Before *shipment.Shipment `json:"before,omitempty"`
	After  *shipment.Shipment `json:"after"`
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	FetchBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
}
