// Package store persists shipments and their tracking history.
package store

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
)

var (
	// ErrNotFound is returned when no shipment exists for an order.
	ErrNotFound = errors.New("shipment not found")

	// ErrDuplicateOrder is returned when an order already has a shipment.
	ErrDuplicateOrder = errors.New("order already has a shipment")
)

// Shipment is the persisted record of a booked order. There is at most one
// per order and it is never deleted.
type Shipment struct {
	ID                string
	OrderID           string
	CarrierType       carrier.CarrierType
	CarrierName       string
	TrackingNumber    string // empty while the carrier has not issued one
	CarrierReference  string
	Status            carrier.Status
	EstimatedDelivery string
	ShippingCost      float64
	LabelURL          string
	Metadata          map[string]any
	Active            bool
	LastTrackedAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TrackingPending reports whether the shipment still waits for a tracking number.
func (s *Shipment) TrackingPending() bool {
	return s.TrackingNumber == ""
}

// Clone returns a copy that shares no mutable state with s.
func (s *Shipment) Clone() *Shipment {
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	if s.LastTrackedAt != nil {
		t := *s.LastTrackedAt
		c.LastTrackedAt = &t
	}
	return &c
}

// TrackingEventRecord is a persisted carrier scan. Two records with the same
// shipment, status, location and timestamp are the same event.
type TrackingEventRecord struct {
	ShipmentID string
	Status     string
	StatusCode carrier.Status
	Location   string
	Remarks    string
	Timestamp  time.Time
}

type eventKey struct {
	shipmentID string
	status     string
	location   string
	timestamp  int64
}

func (e TrackingEventRecord) key() eventKey {
	return eventKey{
		shipmentID: e.ShipmentID,
		status:     e.Status,
		location:   e.Location,
		timestamp:  e.Timestamp.UnixNano(),
	}
}

// Store is the persistence collaborator of the shipping orchestrator.
// Implementations are safe for concurrent use.
type Store interface {
	// CreateShipment inserts s, assigning ID and timestamps when unset.
	// It fails with ErrDuplicateOrder if the order already has a shipment.
	CreateShipment(ctx context.Context, s *Shipment) error

	// FindByOrderID returns the shipment for an order or ErrNotFound.
	FindByOrderID(ctx context.Context, orderID string) (*Shipment, error)

	// UpdateShipment overwrites the mutable fields of an existing shipment.
	UpdateShipment(ctx context.Context, s *Shipment) error

	// AppendTrackingEvents stores events not already recorded and returns
	// how many were inserted.
	AppendTrackingEvents(ctx context.Context, shipmentID string, events []TrackingEventRecord) (int, error)

	// ListTrackingEvents returns a shipment's events, newest first.
	ListTrackingEvents(ctx context.Context, shipmentID string) ([]TrackingEventRecord, error)

	Close() error
}
