package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	cargoCacheKey       = "catalog:cargo"
	cargoRefreshTimeout = 30 * time.Second
)

type CargoSource interface {
	Cargo(ctx context.Context) ([]json.RawMessage, error)
}

type CargoList struct {
	Cargo []json.RawMessage `json:"cargo"`
	Count int               `json:"count"`
}

type cargoEntry struct {
	Cargo     []json.RawMessage `json:"cargo"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// GetCargo serves the cargo catalogue from cache. An entry older than
// maxAge is still served while a single background fetch replaces it.
type GetCargo struct {
	cache  Cache
	source CargoSource
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger

	refreshing atomic.Bool
	background sync.WaitGroup
}

func NewGetCargo(cache Cache, source CargoSource, maxAge time.Duration, logger *slog.Logger) *GetCargo {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetCargo{
		cache:  cache,
		source: source,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger,
	}
}

func (uc *GetCargo) Execute(ctx context.Context) (CargoList, error) {
	if uc.cache != nil {
		data, ok, err := uc.cache.Get(ctx, cargoCacheKey)
		if err != nil {
			uc.logger.Warn("cargo cache read failed", "error", err)
		}
		var entry cargoEntry
		if ok && json.Unmarshal(data, &entry) == nil {
			if uc.now().Sub(entry.FetchedAt) >= uc.maxAge {
				uc.refreshInBackground()
			}
			return CargoList{Cargo: entry.Cargo, Count: len(entry.Cargo)}, nil
		}
	}

	cargo, err := uc.fetch(ctx)
	if err != nil {
		return CargoList{}, fmt.Errorf("get cargo: %w", err)
	}
	return CargoList{Cargo: cargo, Count: len(cargo)}, nil
}

// Wait blocks until a background refresh, if any, has finished.
func (uc *GetCargo) Wait() {
	uc.background.Wait()
}

func (uc *GetCargo) refreshInBackground() {
	if !uc.refreshing.CompareAndSwap(false, true) {
		return
	}
	uc.background.Add(1)
	go func() {
		defer uc.background.Done()
		defer uc.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), cargoRefreshTimeout)
		defer cancel()

		uc.logger.Info("cached cargo is stale, refreshing")
		if _, err := uc.fetch(ctx); err != nil {
			uc.logger.Error("cargo refresh failed, keeping stale copy", "error", err)
		}
	}()
}

func (uc *GetCargo) fetch(ctx context.Context) ([]json.RawMessage, error) {
	cargo, err := uc.source.Cargo(ctx)
	if err != nil {
		return nil, err
	}
	if uc.cache == nil {
		return cargo, nil
	}

	data, err := json.Marshal(cargoEntry{Cargo: cargo, FetchedAt: uc.now()})
	if err != nil {
		return nil, fmt.Errorf("encode cargo: %w", err)
	}
	// No expiry: a stale copy beats no copy when the upstream is down.
	if err := uc.cache.Set(ctx, cargoCacheKey, data, 0); err != nil {
		uc.logger.Warn("cargo cache write failed", "error", err)
	}
	return cargo, nil
}
