// Package carrier provides an abstraction layer for third-party courier services.
package carrier

import (
	"context"
)

// Carrier defines the contract every courier adapter must implement.
//
// Read operations (CheckServiceability, GetRates, TrackShipment) are retried
// with backoff inside the adapter. CreateShipment and CancelShipment are
// never retried: repeating them could register duplicate orders at the vendor.
type Carrier interface {
	// Type returns the carrier identifier used for registry lookups and persistence.
	Type() CarrierType

	// Name returns a human readable carrier name (e.g., "Shipmozo").
	Name() string

	// CheckServiceability reports whether the carrier delivers between the two
	// pincodes. Any transport or API failure is reported as false.
	CheckServiceability(ctx context.Context, pickupPincode, deliveryPincode string) bool

	// GetRates returns rate quotes for a request. Invalid requests fail with
	// ErrInvalidRequest before any network call; carrier failures yield an
	// empty slice and a nil error.
	GetRates(ctx context.Context, req *RateRequest) ([]CarrierRate, error)

	// CreateShipment drives the carrier's full booking workflow. It either
	// returns a complete response or an error; partial completion is an error.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)

	// TrackShipment fetches and normalizes the current state of a shipment.
	TrackShipment(ctx context.Context, trackingNumber string) (*TrackingStatus, error)

	// CancelShipment asks the carrier to cancel a shipment. It returns false
	// when the carrier refuses or cannot be reached.
	CancelShipment(ctx context.Context, req *CancelRequest) bool
}

// Labeler is implemented by carriers that can return a shipping label.
type Labeler interface {
	GetLabel(ctx context.Context, trackingNumber string) (string, error)
}

// WarehouseLister is implemented by carriers that manage pickup locations.
type WarehouseLister interface {
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
}

// BreakerReporter is implemented by carriers whose API calls pass through a
// circuit breaker. BreakerState is "closed", "half-open" or "open", or empty
// when no breaker is in the path.
type BreakerReporter interface {
	BreakerState() string
}

// TrackingNumberResolver is implemented by carriers that can issue a tracking
// number after the booking workflow finished without one.
type TrackingNumberResolver interface {
	// ResolveTrackingNumber returns the tracking number for a vendor order
	// reference, or an empty string while it is still pending.
	ResolveTrackingNumber(ctx context.Context, carrierReference string) (string, error)
}
