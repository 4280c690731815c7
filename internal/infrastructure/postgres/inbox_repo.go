package postgres

import (
	"context"
	"fmt"

	domainEvent "freight/internal/domain/event"
	"freight/internal/domain/inbox"

	"github.com/jackc/pgx/v5/pgxpool"
)

type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

func (r *InboxRepository) IsProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM inbox_events WHERE consumer = $1 AND event_id = $2)`

	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, query, consumer, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query inbox event: %w", err)
	}
	return exists, nil
}

// MarkProcessed records msg for consumer. Recording the same message
// twice is not an error.
func (r *InboxRepository) MarkProcessed(ctx context.Context, consumer string, msg domainEvent.Message) error {
	const query = `
		INSERT INTO inbox_events (consumer, event_id, event_type, correlation_id, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (consumer, event_id) DO NOTHING
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, consumer, msg.ID, msg.Type, nullIfEmpty(msg.CorrelationID)); err != nil {
		return fmt.Errorf("insert inbox event: %w", err)
	}
	return nil
}

func (r *InboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*inbox.Event, error) {
	const query = `
		SELECT consumer, event_id, event_type, COALESCE(correlation_id, ''), processed_at
		FROM inbox_events
		WHERE correlation_id = $1
		ORDER BY processed_at ASC
	`

	rows, err := r.pool.Query(ctx, query, nullIfEmpty(correlationID))
	if err != nil {
		return nil, fmt.Errorf("query inbox events: %w", err)
	}
	defer rows.Close()

	var events []*inbox.Event
	for rows.Next() {
		e := &inbox.Event{}
		if err := rows.Scan(&e.Consumer, &e.EventID, &e.EventType, &e.CorrelationID, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan inbox event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
