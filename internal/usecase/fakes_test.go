package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"freight/internal/domain/inbox"
	"freight/internal/domain/outbox"
	"freight/internal/domain/shipment"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// inlineTx runs the function directly and reports its error, which is
// enough to check that use cases abort on failure.
type inlineTx struct{ calls int }

func (tx *inlineTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.calls++
	return fn(ctx)
}

type memoryShipments struct {
	mu      sync.Mutex
	records map[string]*shipment.Shipment
	reads   int
}

func newMemoryShipments(records ...*shipment.Shipment) *memoryShipments {
	m := &memoryShipments{records: map[string]*shipment.Shipment{}}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *memoryShipments) Create(_ context.Context, s *shipment.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.records[s.ID] = &clone
	return nil
}

func (m *memoryShipments) GetByID(_ context.Context, id string) (*shipment.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	r, ok := m.records[id]
	if !ok {
		return nil, shipment.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *memoryShipments) GetForUpdate(ctx context.Context, id string) (*shipment.Shipment, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryShipments) Update(_ context.Context, s *shipment.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[s.ID]; !ok {
		return shipment.ErrNotFound
	}
	clone := *s
	m.records[s.ID] = &clone
	return nil
}

type memoryOutbox struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func (o *memoryOutbox) Create(_ context.Context, e *outbox.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
	return nil
}

func (o *memoryOutbox) ListByCorrelationID(_ context.Context, correlationID string) ([]*outbox.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*outbox.Event
	for _, e := range o.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type staticInbox []*inbox.Event

func (i staticInbox) ListByCorrelationID(_ context.Context, correlationID string) ([]*inbox.Event, error) {
	var out []*inbox.Event
	for _, e := range i {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
