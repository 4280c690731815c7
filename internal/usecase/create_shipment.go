package usecase

import (
	"context"
	"fmt"
	"time"

	"freight/internal/domain/shipment"

	"github.com/google/uuid"
)

type CreateShipment struct {
	txManager  Transactor
	shipments  ShipmentRepository
	outboxRepo OutboxWriter
	now        func() time.Time
}

func NewCreateShipment(txManager Transactor, shipments ShipmentRepository, outboxRepo OutboxWriter) *CreateShipment {
	return &CreateShipment{
		txManager:  txManager,
		shipments:  shipments,
		outboxRepo: outboxRepo,
		now:        time.Now,
	}
}

type CreateShipmentParams struct {
	UserID string               `json:"user_id"`
	Client string               `json:"client"`
	Ports  []*shipment.Location `json:"port"`
	Cargo  []shipment.CargoItem `json:"cargo"`
}

func (uc *CreateShipment) Execute(ctx context.Context, params CreateShipmentParams) (*shipment.Shipment, error) {
	now := uc.now().UTC()
	newShipment := &shipment.Shipment{
		ID:        uuid.New().String(),
		UserID:    params.UserID,
		Client:    params.Client,
		Status:    shipment.StatusScheduled,
		Ports:     params.Ports,
		Cargo:     params.Cargo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := newShipment.Validate(); err != nil {
		return nil, err
	}

	event, err := newChangeEvent(nil, newShipment, now)
	if err != nil {
		return nil, err
	}

	err = uc.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.shipments.Create(txCtx, newShipment); err != nil {
			return err
		}
		return uc.outboxRepo.Create(txCtx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("create shipment: %w", err)
	}

	return newShipment, nil
}
