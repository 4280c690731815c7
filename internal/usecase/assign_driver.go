package usecase

import (
	"context"
	"fmt"
	"time"

	"freight/internal/domain/shipment"
)

type AssignDriver struct {
	txManager  Transactor
	shipments  ShipmentRepository
	outboxRepo OutboxWriter
	cache      Cache
	now        func() time.Time
}

func NewAssignDriver(txManager Transactor, shipments ShipmentRepository, outboxRepo OutboxWriter, cache Cache) *AssignDriver {
	return &AssignDriver{
		txManager:  txManager,
		shipments:  shipments,
		outboxRepo: outboxRepo,
		cache:      cache,
		now:        time.Now,
	}
}

type AssignDriverParams struct {
	ShipmentID  string
	RequesterID string
	Staff       bool
	DriverID    string
	DriverName  string
}

// Execute claims a shipment for a driver. Drivers may only claim open
// shipments for themselves; staff may assign or reassign anyone.
func (uc *AssignDriver) Execute(ctx context.Context, params AssignDriverParams) (*shipment.Shipment, error) {
	if params.DriverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", shipment.ErrInvalidShipment)
	}
	if !params.Staff && params.DriverID != params.RequesterID {
		return nil, fmt.Errorf("%w: drivers can only assign themselves", shipment.ErrForbidden)
	}

	updated, err := mutateShipment(ctx, uc.txManager, uc.shipments, uc.outboxRepo, params.ShipmentID, uc.now,
		func(s *shipment.Shipment) error {
			if s.Status.Terminal() {
				return fmt.Errorf("%w: shipment is %s", shipment.ErrInvalidTransition, s.Status)
			}
			if s.DriverID != "" && !params.Staff {
				return shipment.ErrDriverAssigned
			}
			s.DriverID = params.DriverID
			s.DriverName = params.DriverName
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("assign driver: %w", err)
	}

	invalidate(ctx, uc.cache, params.ShipmentID)
	return updated, nil
}
