package graphql

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/pkg/carrier"
)

// Error extension codes.
const (
	CodeBadRequest             = "BAD_REQUEST"
	CodeNoDeliveryOptions      = "NO_DELIVERY_OPTIONS"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeShipmentCreationFailed = "SHIPMENT_CREATION_FAILED"
	CodeCancellationFailed     = "CANCELLATION_FAILED"
	CodeInternal               = "INTERNAL"
)

// ErrorCode classifies err for the "code" error extension.
func ErrorCode(err error) string {
	var (
		creationErr *shipping.ShipmentCreationError
		cancelErr   *shipping.CancellationError
	)
	switch {
	case errors.Is(err, carrier.ErrInvalidRequest):
		return CodeBadRequest
	case errors.Is(err, shipping.ErrNoDeliveryOptions):
		return CodeNoDeliveryOptions
	case errors.Is(err, shipping.ErrShipmentNotFound):
		return CodeNotFound
	case errors.Is(err, shipping.ErrShipmentExists), errors.Is(err, shipping.ErrCancellationNotAllowed):
		return CodeConflict
	case errors.As(err, &creationErr):
		return CodeShipmentCreationFailed
	case errors.As(err, &cancelErr):
		return CodeCancellationFailed
	default:
		return CodeInternal
	}
}

// toGraphQLError renders err at path. Internal errors hide their detail.
func toGraphQLError(err error, path ast.Path) *gqlerror.Error {
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}

	gerr := &gqlerror.Error{
		Message:    msg,
		Path:       path,
		Extensions: map[string]any{"code": code},
	}
	var creationErr *shipping.ShipmentCreationError
	if errors.As(err, &creationErr) && creationErr.Reference != "" {
		gerr.Extensions["carrierReference"] = creationErr.Reference
	}
	return gerr
}

func decodeArg(args map[string]any, name string, dst any) error {
	raw, ok := args[name]
	if !ok || raw == nil {
		return fmt.Errorf("%w: %s is required", carrier.ErrInvalidRequest, name)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", carrier.ErrInvalidRequest, name, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", carrier.ErrInvalidRequest, name, err)
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// ShipmentView is the GraphQL shape of a stored shipment.
type ShipmentView struct {
	ID                string  `json:"id"`
	OrderID           string  `json:"orderId"`
	CarrierType       string  `json:"carrierType"`
	CarrierName       string  `json:"carrierName"`
	TrackingNumber    string  `json:"trackingNumber"`
	CarrierReference  string  `json:"carrierReference"`
	Status            string  `json:"status"`
	EstimatedDelivery string  `json:"estimatedDelivery"`
	ShippingCost      float64 `json:"shippingCost"`
	LabelURL          *string `json:"labelUrl"`
	Active            bool    `json:"active"`
	LastTrackedAt     *string `json:"lastTrackedAt"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// TrackingEventView is the GraphQL shape of a stored tracking event.
type TrackingEventView struct {
	Status     string  `json:"status"`
	StatusCode string  `json:"statusCode"`
	Location   string  `json:"location"`
	Remarks    *string `json:"remarks"`
	Timestamp  string  `json:"timestamp"`
}

// ShipmentDetailsView pairs a shipment with its events, newest first.
type ShipmentDetailsView struct {
	Shipment ShipmentView        `json:"shipment"`
	Events   []TrackingEventView `json:"events"`
}

func shipmentDetailsToView(d *shipping.ShipmentDetails) *ShipmentDetailsView {
	s := d.Shipment
	view := &ShipmentDetailsView{
		Shipment: ShipmentView{
			ID:                s.ID,
			OrderID:           s.OrderID,
			CarrierType:       string(s.CarrierType),
			CarrierName:       s.CarrierName,
			TrackingNumber:    s.TrackingNumber,
			CarrierReference:  s.CarrierReference,
			Status:            string(s.Status),
			EstimatedDelivery: s.EstimatedDelivery,
			ShippingCost:      s.ShippingCost,
			LabelURL:          optional(s.LabelURL),
			Active:            s.Active,
			CreatedAt:         formatTime(s.CreatedAt),
			UpdatedAt:         formatTime(s.UpdatedAt),
		},
		Events: make([]TrackingEventView, len(d.Events)),
	}
	if s.LastTrackedAt != nil {
		t := formatTime(*s.LastTrackedAt)
		view.Shipment.LastTrackedAt = &t
	}
	for i, e := range d.Events {
		view.Events[i] = TrackingEventView{
			Status:     e.Status,
			StatusCode: string(e.StatusCode),
			Location:   e.Location,
			Remarks:    optional(e.Remarks),
			Timestamp:  formatTime(e.Timestamp),
		}
	}
	return view
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
