package usecase

import (
	"context"
	"fmt"
	"time"

	"freight/internal/domain/shipment"
)

type UpdateStatus struct {
	txManager  Transactor
	shipments  ShipmentRepository
	outboxRepo OutboxWriter
	cache      Cache
	now        func() time.Time
}

func NewUpdateStatus(txManager Transactor, shipments ShipmentRepository, outboxRepo OutboxWriter, cache Cache) *UpdateStatus {
	return &UpdateStatus{
		txManager:  txManager,
		shipments:  shipments,
		outboxRepo: outboxRepo,
		cache:      cache,
		now:        time.Now,
	}
}

type UpdateStatusParams struct {
	ShipmentID  string
	RequesterID string
	Staff       bool
	Status      shipment.Status
	// Override skips the forward-only lifecycle check. Staff only.
	Override bool
}

// Execute moves a shipment to a new status. Only the assigned driver or
// staff may do so.
func (uc *UpdateStatus) Execute(ctx context.Context, params UpdateStatusParams) (*shipment.Shipment, error) {
	if params.Override && !params.Staff {
		return nil, fmt.Errorf("%w: status override is staff only", shipment.ErrForbidden)
	}

	updated, err := mutateShipment(ctx, uc.txManager, uc.shipments, uc.outboxRepo, params.ShipmentID, uc.now,
		func(s *shipment.Shipment) error {
			if !params.Staff && (s.DriverID == "" || s.DriverID != params.RequesterID) {
				return fmt.Errorf("%w: only the assigned driver may update status", shipment.ErrForbidden)
			}
			if err := shipment.CanTransition(s.Status, params.Status, params.Override); err != nil {
				return err
			}
			s.Status = params.Status
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("update shipment status: %w", err)
	}

	invalidate(ctx, uc.cache, params.ShipmentID)
	return updated, nil
}
