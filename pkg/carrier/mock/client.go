// Package mock provides a scriptable in-memory carrier for tests and local runs.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
)

// Client is a mock carrier. Zero-value hooks fall back to canned behaviour:
// every route is serviceable, two rates are quoted, bookings succeed and
// tracking reports PENDING.
type Client struct {
	carrierType carrier.CarrierType
	name        string

	// Latency delays every call.
	Latency time.Duration

	OnCheckServiceability func(ctx context.Context, pickup, delivery string) bool
	OnGetRates            func(ctx context.Context, req *carrier.RateRequest) ([]carrier.CarrierRate, error)
	OnCreateShipment      func(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error)
	OnTrackShipment       func(ctx context.Context, trackingNumber string) (*carrier.TrackingStatus, error)
	OnCancelShipment      func(ctx context.Context, req *carrier.CancelRequest) bool

	serviceabilityCalls atomic.Int32
	rateCalls           atomic.Int32
	createCalls         atomic.Int32
	trackCalls          atomic.Int32
	cancelCalls         atomic.Int32

	mu      sync.Mutex
	tracked map[string]struct{}
}

var _ carrier.Carrier = (*Client)(nil)

// New creates a new mock carrier of the given type.
func New(t carrier.CarrierType) *Client {
	return &Client{
		carrierType: t,
		name:        string(t),
		tracked:     make(map[string]struct{}),
	}
}

// Type returns the carrier type.
func (c *Client) Type() carrier.CarrierType {
	return c.carrierType
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) wait(ctx context.Context) {
	if c.Latency <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.Latency):
	}
}

// CheckServiceability reports every route as serviceable unless overridden.
func (c *Client) CheckServiceability(ctx context.Context, pickup, delivery string) bool {
	c.serviceabilityCalls.Add(1)
	c.wait(ctx)
	if c.OnCheckServiceability != nil {
		return c.OnCheckServiceability(ctx, pickup, delivery)
	}
	return true
}

// GetRates returns a standard and an express quote unless overridden.
func (c *Client) GetRates(ctx context.Context, req *carrier.RateRequest) ([]carrier.CarrierRate, error) {
	c.rateCalls.Add(1)
	if err := carrier.ValidateRateRequest(req); err != nil {
		return nil, err
	}
	c.wait(ctx)
	if c.OnGetRates != nil {
		return c.OnGetRates(ctx, req)
	}

	return []carrier.CarrierRate{
		{
			CarrierType:           c.carrierType,
			CarrierID:             "1",
			CarrierName:           c.name,
			ServiceName:           "Standard",
			Price:                 80,
			EstimatedDeliveryDays: "4-6 days",
			CODAvailable:          true,
		},
		{
			CarrierType:           c.carrierType,
			CarrierID:             "2",
			CarrierName:           c.name,
			ServiceName:           "Express",
			Price:                 140,
			EstimatedDeliveryDays: "1-2 days",
			CODAvailable:          false,
		},
	}, nil
}

// CreateShipment books a mock shipment unless overridden.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
	c.createCalls.Add(1)
	if err := carrier.ValidateShipmentRequest(req); err != nil {
		return nil, err
	}
	c.wait(ctx)
	if c.OnCreateShipment != nil {
		return c.OnCreateShipment(ctx, req)
	}

	carrierID := "1"
	estimate := "4-6 days"
	if req.SelectedRate != nil {
		carrierID = req.SelectedRate.CarrierID
		estimate = req.SelectedRate.EstimatedDeliveryDays
	}
	trackingNumber := fmt.Sprintf("%s-%s", c.name, req.OrderID)

	c.mu.Lock()
	c.tracked[trackingNumber] = struct{}{}
	c.mu.Unlock()

	return &carrier.ShipmentResponse{
		Success:           true,
		TrackingNumber:    trackingNumber,
		CarrierReference:  "ref-" + req.OrderID,
		CarrierID:         carrierID,
		CarrierName:       c.name,
		EstimatedDelivery: estimate,
		LabelURL:          fmt.Sprintf("https://labels.%s.mock/%s.pdf", c.name, trackingNumber),
	}, nil
}

// TrackShipment reports PENDING for shipments booked through this mock.
func (c *Client) TrackShipment(ctx context.Context, trackingNumber string) (*carrier.TrackingStatus, error) {
	c.trackCalls.Add(1)
	c.wait(ctx)
	if c.OnTrackShipment != nil {
		return c.OnTrackShipment(ctx, trackingNumber)
	}

	c.mu.Lock()
	_, ok := c.tracked[trackingNumber]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", carrier.ErrShipmentNotFound, trackingNumber)
	}

	return &carrier.TrackingStatus{
		TrackingNumber: trackingNumber,
		CurrentStatus:  "Order Placed",
		StatusCode:     carrier.NormalizeStatus("Order Placed", nil),
		LastUpdated:    time.Now(),
		Events:         []carrier.TrackingEvent{},
	}, nil
}

// CancelShipment accepts every cancellation unless overridden.
func (c *Client) CancelShipment(ctx context.Context, req *carrier.CancelRequest) bool {
	c.cancelCalls.Add(1)
	c.wait(ctx)
	if c.OnCancelShipment != nil {
		return c.OnCancelShipment(ctx, req)
	}
	return true
}

// ServiceabilityCalls returns how many serviceability checks were made.
func (c *Client) ServiceabilityCalls() int { return int(c.serviceabilityCalls.Load()) }

// RateCalls returns how many rate requests were made.
func (c *Client) RateCalls() int { return int(c.rateCalls.Load()) }

// CreateCalls returns how many bookings were attempted.
func (c *Client) CreateCalls() int { return int(c.createCalls.Load()) }

// TrackCalls returns how many tracking requests were made.
func (c *Client) TrackCalls() int { return int(c.trackCalls.Load()) }

// CancelCalls returns how many cancellations were attempted.
func (c *Client) CancelCalls() int { return int(c.cancelCalls.Load()) }
