package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"freight/internal/domain/shipment"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ShipmentRepository struct {
	pool *pgxpool.Pool
}

func NewShipmentRepository(pool *pgxpool.Pool) *ShipmentRepository {
	return &ShipmentRepository{pool: pool}
}

const shipmentColumns = `
	id, user_id, client, status, ports, cargo,
	COALESCE(driver_id, ''),
	COALESCE(driver_name, ''),
	COALESCE(external_message_id, ''),
	created_at, updated_at
`

func (r *ShipmentRepository) Create(ctx context.Context, s *shipment.Shipment) error {
	const sql = `
		INSERT INTO shipments (
			id, user_id, client, status, ports, cargo,
			driver_id, driver_name, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	ports, cargo, err := encodeShipmentJSON(s)
	if err != nil {
		return err
	}

	_, err = conn(ctx, r.pool).Exec(ctx, sql,
		s.ID, s.UserID, s.Client, s.Status, ports, cargo,
		nullIfEmpty(s.DriverID), nullIfEmpty(s.DriverName), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (r *ShipmentRepository) GetByID(ctx context.Context, id string) (*shipment.Shipment, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	s, err := scanShipment(row)
	if err != nil {
		return nil, fmt.Errorf("get shipment by id: %w", err)
	}
	return s, nil
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *ShipmentRepository) GetForUpdate(ctx context.Context, id string) (*shipment.Shipment, error) {
	tx := GetTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("get shipment for update: no transaction in context")
	}
	row := tx.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id)
	s, err := scanShipment(row)
	if err != nil {
		return nil, fmt.Errorf("get shipment for update: %w", err)
	}
	return s, nil
}

// Update writes every mutable field except the external message id,
// which only SetExternalMessageID may touch.
func (r *ShipmentRepository) Update(ctx context.Context, s *shipment.Shipment) error {
	const sql = `
		UPDATE shipments
		SET client = $2, status = $3, ports = $4, cargo = $5,
			driver_id = $6, driver_name = $7, updated_at = $8
		WHERE id = $1
	`

	ports, cargo, err := encodeShipmentJSON(s)
	if err != nil {
		return err
	}

	tag, err := conn(ctx, r.pool).Exec(ctx, sql,
		s.ID, s.Client, s.Status, ports, cargo,
		nullIfEmpty(s.DriverID), nullIfEmpty(s.DriverName), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shipment.ErrNotFound
	}
	return nil
}

// SetExternalMessageID stores the channel message id only if none is
// stored yet. It reports false when another writer got there first.
func (r *ShipmentRepository) SetExternalMessageID(ctx context.Context, id, messageID string) (bool, error) {
	const sql = `
		UPDATE shipments
		SET external_message_id = $2
		WHERE id = $1 AND external_message_id IS NULL
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, sql, id, messageID)
	if err != nil {
		return false, fmt.Errorf("set external message id: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shipments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check shipment exists: %w", err)
	}
	if !exists {
		return false, shipment.ErrNotFound
	}
	return false, nil
}

// ReplaceExternalMessageID swaps a stale message id for a new one. It
// reports false when the stored id is no longer oldID.
func (r *ShipmentRepository) ReplaceExternalMessageID(ctx context.Context, id, oldID, newID string) (bool, error) {
	const sql = `
		UPDATE shipments
		SET external_message_id = $3
		WHERE id = $1 AND external_message_id = $2
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, sql, id, oldID, newID)
	if err != nil {
		return false, fmt.Errorf("replace external message id: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ShipmentRepository) ListRecent(ctx context.Context, limit int) ([]*shipment.Shipment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+shipmentColumns+` FROM shipments ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}
	defer rows.Close()

	var shipments []*shipment.Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

func scanShipment(row pgx.Row) (*shipment.Shipment, error) {
	var (
		s     shipment.Shipment
		ports []byte
		cargo []byte
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Client, &s.Status, &ports, &cargo,
		&s.DriverID, &s.DriverName, &s.ExternalMessageID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shipment.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(ports, &s.Ports); err != nil {
		return nil, fmt.Errorf("decode ports: %w", err)
	}
	if err := json.Unmarshal(cargo, &s.Cargo); err != nil {
		return nil, fmt.Errorf("decode cargo: %w", err)
	}
	return &s, nil
}

func encodeShipmentJSON(s *shipment.Shipment) (string, string, error) {
	ports, err := json.Marshal(s.Ports)
	if err != nil {
		return "", "", fmt.Errorf("encode ports: %w", err)
	}
	cargo := s.Cargo
	if cargo == nil {
		cargo = []shipment.CargoItem{}
	}
	encodedCargo, err := json.Marshal(cargo)
	if err != nil {
		return "", "", fmt.Errorf("encode cargo: %w", err)
	}
	return string(ports), string(encodedCargo), nil
}
