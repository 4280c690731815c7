package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"freight/internal/domain/shipment"
)

type GetShipment struct {
	cache     Cache
	shipments ShipmentRepository
	ttl       time.Duration
	logger    *slog.Logger
}

// NewGetShipment reads through cache when it is non-nil. Keep ttl short:
// the notifier writes the message id without going through the API.
func NewGetShipment(cache Cache, shipments ShipmentRepository, ttl time.Duration, logger *slog.Logger) *GetShipment {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetShipment{
		cache:     cache,
		shipments: shipments,
		ttl:       ttl,
		logger:    logger,
	}
}

func (uc *GetShipment) Execute(ctx context.Context, id string) (*shipment.Shipment, error) {
	key := cacheKey(id)

	if uc.cache != nil {
		data, ok, err := uc.cache.Get(ctx, key)
		if err != nil {
			uc.logger.Warn("shipment cache read failed", "shipment_id", id, "error", err)
		}
		if ok {
			var cached shipment.Shipment
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	s, err := uc.shipments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	if uc.cache != nil && uc.ttl > 0 {
		data, err := json.Marshal(s)
		if err == nil {
			if err := uc.cache.Set(ctx, key, data, uc.ttl); err != nil {
				uc.logger.Warn("shipment cache write failed", "shipment_id", id, "error", err)
			}
		}
	}

	return s, nil
}
