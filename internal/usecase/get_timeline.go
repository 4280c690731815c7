package usecase

import (
	"context"
	"fmt"

	"freight/internal/domain/inbox"
	"freight/internal/domain/outbox"
	"freight/internal/domain/shipment"
)

// TimelineDTO shows how far one shipment's changes travelled: the outbox
// rows written by the API and the queue messages the notifier handled.
type TimelineDTO struct {
	Shipment *shipment.Shipment `json:"shipment"`
	Outbox   []*outbox.Event    `json:"outbox"`
	Inbox    []*inbox.Event     `json:"inbox"`
}

type GetTimeline struct {
	shipments  ShipmentRepository
	outboxRepo OutboxReader
	inboxRepo  InboxReader
}

func NewGetTimeline(shipments ShipmentRepository, outboxRepo OutboxReader, inboxRepo InboxReader) *GetTimeline {
	return &GetTimeline{
		shipments:  shipments,
		outboxRepo: outboxRepo,
		inboxRepo:  inboxRepo,
	}
}

func (uc *GetTimeline) Execute(ctx context.Context, shipmentID string) (*TimelineDTO, error) {
	s, err := uc.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	outboxEvents, err := uc.outboxRepo.ListByCorrelationID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get outbox events: %w", err)
	}

	inboxEvents, err := uc.inboxRepo.ListByCorrelationID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get inbox events: %w", err)
	}

	return &TimelineDTO{
		Shipment: s,
		Outbox:   outboxEvents,
		Inbox:    inboxEvents,
	}, nil
}
