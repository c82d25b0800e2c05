package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tournevent/courier/pkg/carrier"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = pq.ErrorCode("23505")

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) CreateShipment(ctx context.Context, s *Shipment) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	metadata, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO shipments (id, order_id, carrier_type, carrier_name, tracking_number,
			carrier_reference, status, estimated_delivery, shipping_cost, label_url,
			metadata, is_active, last_tracked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = p.db.ExecContext(ctx, query,
		s.ID, s.OrderID, string(s.CarrierType), s.CarrierName, s.TrackingNumber,
		s.CarrierReference, string(s.Status), s.EstimatedDelivery, s.ShippingCost, s.LabelURL,
		metadata, s.Active, nullTime(s.LastTrackedAt), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, s.OrderID)
		}
		return fmt.Errorf("inserting shipment: %w", err)
	}
	return nil
}

func (p *PostgresStore) FindByOrderID(ctx context.Context, orderID string) (*Shipment, error) {
	query := `
		SELECT id, order_id, carrier_type, carrier_name, tracking_number, carrier_reference,
			status, estimated_delivery, shipping_cost, label_url, metadata, is_active,
			last_tracked_at, created_at, updated_at
		FROM shipments
		WHERE order_id = $1`

	var (
		s           Shipment
		carrierType string
		status      string
		metadata    []byte
		lastTracked sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, query, orderID).Scan(
		&s.ID, &s.OrderID, &carrierType, &s.CarrierName, &s.TrackingNumber, &s.CarrierReference,
		&status, &s.EstimatedDelivery, &s.ShippingCost, &s.LabelURL, &metadata, &s.Active,
		&lastTracked, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying shipment: %w", err)
	}

	s.CarrierType = carrier.CarrierType(carrierType)
	s.Status = carrier.Status(status)
	if lastTracked.Valid {
		t := lastTracked.Time
		s.LastTrackedAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decoding shipment metadata: %w", err)
		}
	}
	return &s, nil
}

func (p *PostgresStore) UpdateShipment(ctx context.Context, s *Shipment) error {
	metadata, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE shipments
		SET tracking_number = $2, carrier_reference = $3, status = $4, estimated_delivery = $5,
			label_url = $6, metadata = $7, is_active = $8, last_tracked_at = $9, updated_at = $10
		WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query,
		s.ID, s.TrackingNumber, s.CarrierReference, string(s.Status), s.EstimatedDelivery,
		s.LabelURL, metadata, s.Active, nullTime(s.LastTrackedAt), s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating shipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating shipment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, s.OrderID)
	}
	return nil
}

func (p *PostgresStore) AppendTrackingEvents(ctx context.Context, shipmentID string, events []TrackingEventRecord) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracking_events (shipment_id, status, status_code, location, remarks, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (shipment_id, status, location, occurred_at) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing event insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		res, err := stmt.ExecContext(ctx, shipmentID, e.Status, string(e.StatusCode), e.Location, e.Remarks, e.Timestamp.UTC())
		if err != nil {
			return 0, fmt.Errorf("inserting tracking event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("inserting tracking event: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tracking events: %w", err)
	}
	return inserted, nil
}

func (p *PostgresStore) ListTrackingEvents(ctx context.Context, shipmentID string) ([]TrackingEventRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT shipment_id, status, status_code, location, remarks, occurred_at
		FROM tracking_events
		WHERE shipment_id = $1
		ORDER BY occurred_at DESC, id DESC`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("querying tracking events: %w", err)
	}
	defer rows.Close()

	events := []TrackingEventRecord{}
	for rows.Next() {
		var (
			e    TrackingEventRecord
			code string
		)
		if err := rows.Scan(&e.ShipmentID, &e.Status, &code, &e.Location, &e.Remarks, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning tracking event: %w", err)
		}
		e.StatusCode = carrier.Status(code)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracking events: %w", err)
	}
	return events, nil
}

// encodeMetadata renders m as JSON text; lib/pq would send a []byte as bytea.
func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding shipment metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
