// Package events publishes shipment lifecycle events.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
)

// Event types.
const (
	TypeShipmentCreated       = "shipment.created"
	TypeShipmentStatusChanged = "shipment.status_changed"
	TypeShipmentCancelled     = "shipment.cancelled"
)

// ShipmentEvent is the payload published for every lifecycle change.
type ShipmentEvent struct {
	Type           string              `json:"type"`
	OrderID        string              `json:"orderId"`
	ShipmentID     string              `json:"shipmentId"`
	CarrierType    carrier.CarrierType `json:"carrierType"`
	TrackingNumber string              `json:"trackingNumber,omitempty"`
	PreviousStatus carrier.Status      `json:"previousStatus,omitempty"`
	Status         carrier.Status      `json:"status"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

// Publisher delivers events to downstream consumers. key groups events that
// must stay ordered, normally the order id.
type Publisher interface {
	Publish(ctx context.Context, key string, event ShipmentEvent) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, ShipmentEvent) error { return nil }
func (NopPublisher) Close() error                                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []ShipmentEvent
	// Err, when set, is returned from Publish after recording.
	Err error
}

func (r *Recorder) Publish(_ context.Context, _ string, event ShipmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []ShipmentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ShipmentEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the type of every published event, in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
