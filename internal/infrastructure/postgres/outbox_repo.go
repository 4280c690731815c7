package postgres

import (
	"context"
	"fmt"
	"sort"

	"freight/internal/domain/outbox"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

const outboxColumns = `
	id,
	event_type,
	payload,
	status,
	COALESCE(correlation_id, ''),
	COALESCE(causation_id, ''),
	COALESCE(producer, 'unknown'),
	created_at,
	updated_at
`

func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	const sql = `
		INSERT INTO outbox (id, event_type, payload, status, correlation_id, causation_id, producer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	producer := e.Producer
	if producer == "" {
		producer = "unknown"
	}

	_, err := conn(ctx, r.pool).Exec(ctx, sql,
		e.ID, e.EventType, string(e.Payload), e.Status, nullIfEmpty(e.CorrelationID), nullIfEmpty(e.CausationID), producer, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// FetchBatch claims up to limit new events, oldest first. Claimed rows
// move to processing so concurrent pollers skip them.
func (r *OutboxRepository) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	const sql = `
		WITH claimed_events AS (
			SELECT id
			FROM outbox
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed_events)
		RETURNING ` + outboxColumns

	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	events, err := scanOutboxEvents(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not keep the CTE order.
	sortByCreatedAt(events)
	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	return r.setStatus(ctx, ids, outbox.StatusProcessed)
}

// MarkFailed returns events to the queue for the next poll.
func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	return r.setStatus(ctx, ids, outbox.StatusNew)
}

func (r *OutboxRepository) setStatus(ctx context.Context, ids []string, status string) error {
	const sql = `
		UPDATE outbox
		SET status = $2, updated_at = NOW()
		WHERE id = ANY($1)
	`
	_, err := r.pool.Exec(ctx, sql, ids, status)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	return nil
}

// ResetProcessing returns every claimed event to new. Only safe while no
// poller is running.
func (r *OutboxRepository) ResetProcessing(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'new', updated_at = NOW() WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("reset processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) ListRecent(ctx context.Context, limit int) ([]*outbox.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+outboxColumns+` FROM outbox ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

func (r *OutboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error) {
	const sql = `SELECT ` + outboxColumns + ` FROM outbox WHERE correlation_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, sql, nullIfEmpty(correlationID))
	if err != nil {
		return nil, fmt.Errorf("query outbox by correlation_id: %w", err)
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

type outboxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOutboxEvents(rows outboxRows) ([]*outbox.Event, error) {
	var events []*outbox.Event
	for rows.Next() {
		e := &outbox.Event{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Status, &e.CorrelationID, &e.CausationID, &e.Producer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

func sortByCreatedAt(events []*outbox.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
