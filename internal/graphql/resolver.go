// Package graphql serves the shipping API over GraphQL.
package graphql

import (
	"context"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/internal/telemetry"
	"github.com/tournevent/courier/pkg/carrier"
)

// Resolver is the root resolver for the GraphQL schema.
// It holds dependencies needed by all resolvers.
type Resolver struct {
	Orchestrator *shipping.Orchestrator
	Logger       *otelzap.Logger
	Metrics      *telemetry.Metrics

	query    map[string]fieldFunc
	mutation map[string]fieldFunc
}

type fieldFunc func(ctx context.Context, args map[string]any) (any, error)

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(orchestrator *shipping.Orchestrator, logger *otelzap.Logger, metrics *telemetry.Metrics) *Resolver {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	r := &Resolver{
		Orchestrator: orchestrator,
		Logger:       logger,
		Metrics:      metrics,
	}

	r.query = map[string]fieldFunc{
		"health": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Health(ctx)
		},
		"carriers": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Carriers(ctx)
		},
		"deliveryOptions": func(ctx context.Context, args map[string]any) (any, error) {
			var input carrier.RateRequest
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return r.DeliveryOptions(ctx, &input)
		},
		"bestDeliveryOption": func(ctx context.Context, args map[string]any) (any, error) {
			var input carrier.RateRequest
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return r.BestDeliveryOption(ctx, &input, shipping.RatePreference(stringArg(args, "prefer")))
		},
		"trackShipment": func(ctx context.Context, args map[string]any) (any, error) {
			return r.TrackShipment(ctx, stringArg(args, "orderId"))
		},
		"shipment": func(ctx context.Context, args map[string]any) (any, error) {
			return r.Shipment(ctx, stringArg(args, "orderId"))
		},
		"serviceability": func(ctx context.Context, args map[string]any) (any, error) {
			return r.Serviceability(ctx, stringArg(args, "pickupPincode"), stringArg(args, "deliveryPincode"))
		},
		"warehouses": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Warehouses(ctx)
		},
		"regionalPreferences": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.RegionalPreferences(ctx)
		},
	}

	r.mutation = map[string]fieldFunc{
		"createShipment": func(ctx context.Context, args map[string]any) (any, error) {
			var input carrier.ShipmentRequest
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return r.CreateShipment(ctx, &input)
		},
		"cancelShipment": func(ctx context.Context, args map[string]any) (any, error) {
			return r.CancelShipment(ctx, stringArg(args, "orderId"))
		},
		"addRegionalPreference": func(ctx context.Context, args map[string]any) (any, error) {
			var input shipping.CarrierPreference
			if err := decodeArg(args, "input", &input); err != nil {
				return nil, err
			}
			return r.AddRegionalPreference(ctx, input)
		},
	}

	return r
}

// CarrierInfo describes a registered carrier.
type CarrierInfo struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// CancelResult is returned from a successful cancellation.
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Health reports that the service is up.
func (r *Resolver) Health(_ context.Context) (string, error) {
	return "ok", nil
}

// Carriers lists the registered carriers in registration order.
func (r *Resolver) Carriers(_ context.Context) ([]CarrierInfo, error) {
	all := r.Orchestrator.Registry().All()
	out := make([]CarrierInfo, len(all))
	for i, c := range all {
		out[i] = CarrierInfo{Type: string(c.Type()), Name: c.Name()}
	}
	return out, nil
}

// DeliveryOptions quotes a route.
func (r *Resolver) DeliveryOptions(ctx context.Context, input *carrier.RateRequest) ([]shipping.DeliveryOption, error) {
	return r.Orchestrator.GetDeliveryOptions(ctx, input)
}

// BestDeliveryOption returns the single cheapest or fastest quote.
func (r *Resolver) BestDeliveryOption(ctx context.Context, input *carrier.RateRequest, prefer shipping.RatePreference) (*shipping.DeliveryOption, error) {
	return r.Orchestrator.BestDeliveryOption(ctx, input, prefer)
}

// CreateShipment books a shipment for an order.
func (r *Resolver) CreateShipment(ctx context.Context, input *carrier.ShipmentRequest) (*shipping.ShipmentResult, error) {
	input.SelectedRate = nil
	return r.Orchestrator.CreateShipment(ctx, input)
}

// TrackShipment refreshes and returns an order's tracking state.
func (r *Resolver) TrackShipment(ctx context.Context, orderID string) (*shipping.TrackingResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", carrier.ErrInvalidRequest)
	}
	return r.Orchestrator.TrackShipment(ctx, orderID)
}

// CancelShipment cancels an order's shipment.
func (r *Resolver) CancelShipment(ctx context.Context, orderID string) (*CancelResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", carrier.ErrInvalidRequest)
	}
	if err := r.Orchestrator.CancelShipment(ctx, orderID); err != nil {
		return nil, err
	}
	return &CancelResult{Success: true, Message: "Shipment cancelled successfully"}, nil
}

// Shipment returns the stored shipment and tracking history of an order.
func (r *Resolver) Shipment(ctx context.Context, orderID string) (*ShipmentDetailsView, error) {
	details, err := r.Orchestrator.ShipmentDetails(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return shipmentDetailsToView(details), nil
}

// Serviceability asks every carrier whether it serves a route.
func (r *Resolver) Serviceability(ctx context.Context, pickupPincode, deliveryPincode string) (*shipping.ServiceabilityReport, error) {
	return r.Orchestrator.TestServiceability(ctx, pickupPincode, deliveryPincode)
}

// Warehouses lists carrier pickup locations.
func (r *Resolver) Warehouses(ctx context.Context) ([]shipping.CarrierWarehouse, error) {
	list, err := r.Orchestrator.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []shipping.CarrierWarehouse{}
	}
	return list, nil
}

// RegionalPreferences lists the selection rules in evaluation order.
func (r *Resolver) RegionalPreferences(_ context.Context) ([]shipping.CarrierPreference, error) {
	return r.Orchestrator.Selector().RegionalPreferences(), nil
}

// AddRegionalPreference adds a selection rule and returns the updated list.
func (r *Resolver) AddRegionalPreference(ctx context.Context, input shipping.CarrierPreference) ([]shipping.CarrierPreference, error) {
	if !input.PreferredCarrier.Valid() {
		return nil, fmt.Errorf("%w: unknown carrier %q", carrier.ErrInvalidRequest, input.PreferredCarrier)
	}
	if len(input.PincodePrefixes) == 0 {
		return nil, fmt.Errorf("%w: at least one pincode prefix is required", carrier.ErrInvalidRequest)
	}
	r.Orchestrator.Selector().AddRegionalPreference(input)
	return r.RegionalPreferences(ctx)
}
