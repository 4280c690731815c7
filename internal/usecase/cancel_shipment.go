package usecase

import (
	"context"
	"fmt"
	"time"

	"freight/internal/domain/shipment"
)

type CancelShipment struct {
	txManager  Transactor
	shipments  ShipmentRepository
	outboxRepo OutboxWriter
	cache      Cache
	now        func() time.Time
}

func NewCancelShipment(txManager Transactor, shipments ShipmentRepository, outboxRepo OutboxWriter, cache Cache) *CancelShipment {
	return &CancelShipment{
		txManager:  txManager,
		shipments:  shipments,
		outboxRepo: outboxRepo,
		cache:      cache,
		now:        time.Now,
	}
}

// Execute cancels a shipment on behalf of its owner.
func (uc *CancelShipment) Execute(ctx context.Context, shipmentID, requesterID string) (*shipment.Shipment, error) {
	updated, err := mutateShipment(ctx, uc.txManager, uc.shipments, uc.outboxRepo, shipmentID, uc.now,
		func(s *shipment.Shipment) error {
			if err := s.CanCancel(requesterID); err != nil {
				return err
			}
			s.Status = shipment.StatusCancelled
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("cancel shipment: %w", err)
	}

	invalidate(ctx, uc.cache, shipmentID)
	return updated, nil
}
