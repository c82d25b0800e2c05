// Package shipping quotes, books, tracks and cancels shipments across the
// registered carriers.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tournevent/courier/internal/events"
	"github.com/tournevent/courier/internal/store"
	"github.com/tournevent/courier/internal/telemetry"
	"github.com/tournevent/courier/pkg/carrier"
)

// DeliveryOption is a quote as shown at checkout.
type DeliveryOption struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	DeliveryTime string  `json:"deliveryTime"`
	Price        float64 `json:"price"`
	CODAvailable bool    `json:"codAvailable"`
	Recommended  bool    `json:"recommended"`
}

// ShipmentResult is returned from a successful booking.
type ShipmentResult struct {
	Success           bool                `json:"success"`
	OrderID           string              `json:"orderId"`
	TrackingNumber    string              `json:"trackingNumber"`
	TrackingPending   bool                `json:"trackingPending"`
	EstimatedDelivery string              `json:"estimatedDelivery"`
	ShippingCost      float64             `json:"shippingCost"`
	CarrierType       carrier.CarrierType `json:"carrierType"`
	CarrierName       string              `json:"carrierName"`
	LabelURL          string              `json:"labelUrl,omitempty"`
}

// TimelineEntry is one scan in a tracking timeline.
type TimelineEntry struct {
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Remarks   string    `json:"remarks,omitempty"`
}

// TrackingResult is the customer facing tracking view of an order.
type TrackingResult struct {
	OrderID          string          `json:"orderId"`
	TrackingNumber   string          `json:"trackingNumber"`
	TrackingPending  bool            `json:"trackingPending"`
	CarrierName      string          `json:"carrierName"`
	Status           string          `json:"status"`
	StatusCode       carrier.Status  `json:"statusCode"`
	CarrierStatus    string          `json:"carrierStatus,omitempty"`
	ExpectedDelivery string          `json:"expectedDelivery,omitempty"`
	CurrentLocation  string          `json:"currentLocation,omitempty"`
	LastUpdated      time.Time       `json:"lastUpdated"`
	Timeline         []TimelineEntry `json:"timeline"`
}

// ShipmentDetails is a shipment with its stored tracking history.
type ShipmentDetails struct {
	Shipment *store.Shipment
	Events   []store.TrackingEventRecord // newest first
}

// ServiceabilityResult is one carrier's answer for a route.
type ServiceabilityResult struct {
	CarrierType carrier.CarrierType `json:"carrierType"`
	CarrierName string              `json:"carrier"`
	Serviceable bool                `json:"serviceable"`
	Error       string              `json:"error,omitempty"`
	// BreakerState is set for carriers that sit behind a circuit breaker.
	BreakerState string `json:"breakerState,omitempty"`
}

// ServiceabilityReport collects every carrier's answer for a route.
type ServiceabilityReport struct {
	PickupPincode   string                 `json:"pickupPincode"`
	DeliveryPincode string                 `json:"deliveryPincode"`
	Results         []ServiceabilityResult `json:"results"`
}

// CarrierWarehouse is a pickup location tagged with the carrier it belongs to.
type CarrierWarehouse struct {
	CarrierType carrier.CarrierType `json:"carrierType"`
	carrier.Warehouse
}

// Deps are the collaborators of an Orchestrator. Only Registry is required.
type Deps struct {
	Registry  *carrier.Registry
	Selector  *Selector
	Store     store.Store
	Publisher events.Publisher
	Logger    *otelzap.Logger
	Tracer    trace.Tracer
	Metrics   *telemetry.Metrics
}

// Orchestrator runs the shipment lifecycle: quote, select, book, persist,
// track and cancel.
type Orchestrator struct {
	registry   *carrier.Registry
	aggregator *Aggregator
	selector   *Selector
	store      store.Store
	publisher  events.Publisher
	logger     *otelzap.Logger
	tracer     trace.Tracer
	metrics    *telemetry.Metrics
}

// NewOrchestrator creates an Orchestrator, filling unset dependencies with
// the default selector, an in-memory store and a no-op publisher.
func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = otelzap.New(zap.NewNop())
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("github.com/tournevent/courier/internal/shipping")
	}
	if d.Registry == nil {
		d.Registry = carrier.MustNewRegistry()
	}
	if d.Selector == nil {
		d.Selector = NewSelector(d.Logger, DefaultRegionalPreferences())
	}
	if d.Store == nil {
		d.Store = store.NewMemoryStore()
	}
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}

	return &Orchestrator{
		registry:   d.Registry,
		aggregator: NewAggregator(d.Logger, d.Metrics),
		selector:   d.Selector,
		store:      d.Store,
		publisher:  d.Publisher,
		logger:     d.Logger,
		tracer:     d.Tracer,
		metrics:    d.Metrics,
	}
}

// Registry returns the carriers the orchestrator routes to.
func (o *Orchestrator) Registry() *carrier.Registry {
	return o.registry
}

// Selector returns the carrier selector, for managing regional rules.
func (o *Orchestrator) Selector() *Selector {
	return o.selector
}

// GetDeliveryOptions quotes a route across all carriers, cheapest first.
// The cheapest option is marked recommended.
func (o *Orchestrator) GetDeliveryOptions(ctx context.Context, req *carrier.RateRequest) ([]DeliveryOption, error) {
	ctx, span := o.startSpan(ctx, "GetDeliveryOptions")
	defer span.End()

	if err := carrier.ValidateRateRequest(req); err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("pickup_pincode", req.PickupPincode),
		attribute.String("delivery_pincode", req.DeliveryPincode),
	)

	rates := o.aggregator.AggregateRates(ctx, o.registry.All(), req)
	if len(rates) == 0 {
		o.logger.Ctx(ctx).Warn("No delivery options for route",
			zap.String("pickup", req.PickupPincode),
			zap.String("delivery", req.DeliveryPincode),
		)
		return nil, ErrNoDeliveryOptions
	}

	options := make([]DeliveryOption, len(rates))
	for i, r := range rates {
		options[i] = deliveryOption(r, i == 0)
	}
	return options, nil
}

// RatePreference picks a single quote out of an aggregated set.
type RatePreference string

const (
	PreferCheapest RatePreference = "CHEAPEST"
	PreferFastest  RatePreference = "FASTEST"
)

// BestDeliveryOption quotes the route and returns only the option that best
// matches pref.
func (o *Orchestrator) BestDeliveryOption(ctx context.Context, req *carrier.RateRequest, pref RatePreference) (*DeliveryOption, error) {
	ctx, span := o.startSpan(ctx, "BestDeliveryOption")
	defer span.End()

	if err := carrier.ValidateRateRequest(req); err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("preference", string(pref)))

	var (
		rate carrier.CarrierRate
		ok   bool
	)
	switch pref {
	case PreferCheapest, "":
		rate, ok = o.aggregator.Cheapest(ctx, o.registry.All(), req)
	case PreferFastest:
		rate, ok = o.aggregator.Fastest(ctx, o.registry.All(), req)
	default:
		err := fmt.Errorf("%w: unknown rate preference %q", carrier.ErrInvalidRequest, pref)
		recordError(span, err)
		return nil, err
	}
	if !ok {
		return nil, ErrNoDeliveryOptions
	}

	option := deliveryOption(rate, true)
	return &option, nil
}

func deliveryOption(r carrier.CarrierRate, recommended bool) DeliveryOption {
	return DeliveryOption{
		ID:           fmt.Sprintf("%s_%s", r.CarrierType, r.CarrierID),
		Name:         r.EstimatedDeliveryDays + " Delivery",
		DeliveryTime: r.EstimatedDeliveryDays,
		Price:        r.Price,
		CODAvailable: r.CODAvailable,
		Recommended:  recommended,
	}
}

// CreateShipment quotes the order, selects a carrier, books the shipment
// with it and records the result.
func (o *Orchestrator) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*ShipmentResult, error) {
	ctx, span := o.startSpan(ctx, "CreateShipment")
	defer span.End()

	if err := carrier.ValidateShipmentRequest(req); err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order_id", req.OrderID))
	log := o.logger.Ctx(ctx)

	_, err := o.store.FindByOrderID(ctx, req.OrderID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrShipmentExists, req.OrderID)
	case !errors.Is(err, store.ErrNotFound):
		recordError(span, err)
		return nil, fmt.Errorf("looking up order %s: %w", req.OrderID, err)
	}

	rates := o.aggregator.AggregateRates(ctx, o.registry.All(), &req.RateRequest)
	if len(rates) == 0 {
		return nil, ErrNoDeliveryOptions
	}

	selected, err := o.selector.SelectBestCarrier(rates, SelectionCriteria{
		PickupPincode:   req.PickupPincode,
		DeliveryPincode: req.DeliveryPincode,
		Weight:          req.Weight,
		OrderValue:      req.OrderAmount,
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("carrier", string(selected.CarrierType)))

	adapter, err := o.registry.Get(selected.CarrierType)
	if err != nil {
		recordError(span, err)
		return nil, &ShipmentCreationError{OrderID: req.OrderID, Carrier: selected.CarrierType, Err: err}
	}

	log.Info("Booking shipment",
		zap.String("order_id", req.OrderID),
		zap.String("carrier", string(selected.CarrierType)),
		zap.String("service", selected.ServiceName),
		zap.Float64("price", selected.Price),
	)

	booking := *req
	booking.SelectedRate = &selected

	start := time.Now()
	resp, err := adapter.CreateShipment(ctx, &booking)
	if err == nil && (resp == nil || !resp.Success) {
		err = fmt.Errorf("%s rejected the booking", adapter.Name())
	}
	if err != nil {
		o.metrics.RecordRequest("create_shipment", string(selected.CarrierType), "error", time.Since(start).Seconds())
		o.metrics.RecordError(string(selected.CarrierType), errorType(err))
		recordError(span, err)

		creationErr := &ShipmentCreationError{OrderID: req.OrderID, Carrier: selected.CarrierType, Err: err}
		var ce *carrier.CarrierError
		if errors.As(err, &ce) {
			creationErr.Reference = ce.Reference
		}
		log.Error("Shipment creation failed",
			zap.String("order_id", req.OrderID),
			zap.String("carrier", string(selected.CarrierType)),
			zap.String("carrier_reference", creationErr.Reference),
			zap.Error(err),
		)
		return nil, creationErr
	}
	o.metrics.RecordRequest("create_shipment", string(selected.CarrierType), "success", time.Since(start).Seconds())

	labelURL := resp.LabelURL
	if labelURL == "" && !resp.TrackingPending {
		labelURL = o.fetchLabel(ctx, adapter, resp.TrackingNumber)
	}

	estimate := resp.EstimatedDelivery
	if estimate == "" {
		estimate = selected.EstimatedDeliveryDays
	}

	shipment := &store.Shipment{
		OrderID:           req.OrderID,
		CarrierType:       selected.CarrierType,
		CarrierName:       selected.CarrierName,
		TrackingNumber:    resp.TrackingNumber,
		CarrierReference:  resp.CarrierReference,
		Status:            carrier.StatusPending,
		EstimatedDelivery: estimate,
		ShippingCost:      selected.Price,
		LabelURL:          labelURL,
		Metadata:          resp.Metadata,
		Active:            true,
	}
	if resp.TrackingPending {
		shipment.TrackingNumber = ""
	}
	if err := o.store.CreateShipment(ctx, shipment); err != nil {
		recordError(span, err)
		log.Error("Shipment booked but not recorded",
			zap.String("order_id", req.OrderID),
			zap.String("carrier", string(selected.CarrierType)),
			zap.String("tracking_number", resp.TrackingNumber),
			zap.String("carrier_reference", resp.CarrierReference),
			zap.Error(err),
		)
		return nil, fmt.Errorf("recording shipment for order %s (carrier reference %q): %w",
			req.OrderID, resp.CarrierReference, err)
	}

	o.metrics.RecordTransition(string(shipment.CarrierType), string(shipment.Status))
	o.publish(ctx, events.TypeShipmentCreated, shipment, "")

	log.Info("Shipment created",
		zap.String("order_id", req.OrderID),
		zap.String("carrier", string(selected.CarrierType)),
		zap.String("tracking_number", shipment.TrackingNumber),
		zap.Bool("tracking_pending", shipment.TrackingPending()),
	)

	return &ShipmentResult{
		Success:           true,
		OrderID:           req.OrderID,
		TrackingNumber:    shipment.TrackingNumber,
		TrackingPending:   shipment.TrackingPending(),
		EstimatedDelivery: estimate,
		ShippingCost:      selected.Price,
		CarrierType:       selected.CarrierType,
		CarrierName:       selected.CarrierName,
		LabelURL:          labelURL,
	}, nil
}

func (o *Orchestrator) fetchLabel(ctx context.Context, adapter carrier.Carrier, trackingNumber string) string {
	labeler, ok := adapter.(carrier.Labeler)
	if !ok {
		return ""
	}
	url, err := labeler.GetLabel(ctx, trackingNumber)
	if err != nil {
		o.logger.Ctx(ctx).Debug("Label not available yet",
			zap.String("carrier", string(adapter.Type())),
			zap.String("tracking_number", trackingNumber),
			zap.Error(err),
		)
		return ""
	}
	return url
}

// TrackShipment refreshes an order's tracking state from its carrier and
// records any new scans. Status changes follow carrier.CanTransition; a
// carrier report that would move the shipment backwards is ignored.
func (o *Orchestrator) TrackShipment(ctx context.Context, orderID string) (*TrackingResult, error) {
	ctx, span := o.startSpan(ctx, "TrackShipment", attribute.String("order_id", orderID))
	defer span.End()
	log := o.logger.Ctx(ctx)

	shipment, err := o.findShipment(ctx, orderID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	adapter, err := o.registry.Get(shipment.CarrierType)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("tracking order %s: %w", orderID, err)
	}

	if shipment.TrackingPending() {
		if err := o.resolveTrackingNumber(ctx, adapter, shipment); err != nil {
			recordError(span, err)
			return nil, err
		}
		if shipment.TrackingPending() {
			return o.storedTracking(ctx, shipment)
		}
	}

	start := time.Now()
	tracking, err := adapter.TrackShipment(ctx, shipment.TrackingNumber)
	if err != nil {
		o.metrics.RecordRequest("track_shipment", string(shipment.CarrierType), "error", time.Since(start).Seconds())
		o.metrics.RecordError(string(shipment.CarrierType), errorType(err))
		recordError(span, err)
		return nil, fmt.Errorf("tracking order %s with %s: %w", orderID, shipment.CarrierType, err)
	}
	o.metrics.RecordRequest("track_shipment", string(shipment.CarrierType), "success", time.Since(start).Seconds())

	previous := shipment.Status
	changed := carrier.CanTransition(previous, tracking.StatusCode)
	if changed {
		shipment.Status = tracking.StatusCode
	} else if tracking.StatusCode != previous {
		log.Debug("Ignoring carrier status",
			zap.String("order_id", orderID),
			zap.String("current", string(previous)),
			zap.String("reported", string(tracking.StatusCode)),
		)
	}
	now := time.Now().UTC()
	shipment.LastTrackedAt = &now

	if err := o.store.UpdateShipment(ctx, shipment); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("updating shipment for order %s: %w", orderID, err)
	}

	if len(tracking.Events) > 0 {
		records := make([]store.TrackingEventRecord, len(tracking.Events))
		for i, e := range tracking.Events {
			records[i] = store.TrackingEventRecord{
				ShipmentID: shipment.ID,
				Status:     e.Status,
				StatusCode: tracking.StatusCode,
				Location:   e.Location,
				Remarks:    e.Remarks,
				Timestamp:  e.Timestamp,
			}
		}
		inserted, err := o.store.AppendTrackingEvents(ctx, shipment.ID, records)
		if err != nil {
			recordError(span, err)
			return nil, fmt.Errorf("recording tracking events for order %s: %w", orderID, err)
		}
		log.Debug("Recorded tracking events",
			zap.String("order_id", orderID),
			zap.Int("received", len(records)),
			zap.Int("inserted", inserted),
		)
	}

	if changed {
		o.metrics.RecordTransition(string(shipment.CarrierType), string(shipment.Status))
		o.publish(ctx, events.TypeShipmentStatusChanged, shipment, previous)
		log.Info("Shipment status changed",
			zap.String("order_id", orderID),
			zap.String("from", string(previous)),
			zap.String("to", string(shipment.Status)),
		)
	}

	timeline := make([]TimelineEntry, len(tracking.Events))
	for i, e := range tracking.Events {
		timeline[i] = TimelineEntry{
			Status:    e.Status,
			Location:  e.Location,
			Timestamp: e.Timestamp,
			Remarks:   e.Remarks,
		}
	}

	expected := tracking.ExpectedDelivery
	if expected == "" {
		expected = shipment.EstimatedDelivery
	}
	return &TrackingResult{
		OrderID:          shipment.OrderID,
		TrackingNumber:   shipment.TrackingNumber,
		CarrierName:      shipment.CarrierName,
		Status:           shipment.Status.Label(),
		StatusCode:       shipment.Status,
		CarrierStatus:    tracking.CurrentStatus,
		ExpectedDelivery: expected,
		CurrentLocation:  tracking.Location,
		LastUpdated:      tracking.LastUpdated,
		Timeline:         timeline,
	}, nil
}

// resolveTrackingNumber asks the carrier for a tracking number that was not
// issued at booking time and records it when one is available.
func (o *Orchestrator) resolveTrackingNumber(ctx context.Context, adapter carrier.Carrier, shipment *store.Shipment) error {
	resolver, ok := adapter.(carrier.TrackingNumberResolver)
	if !ok || shipment.CarrierReference == "" {
		return nil
	}

	trackingNumber, err := resolver.ResolveTrackingNumber(ctx, shipment.CarrierReference)
	if err != nil {
		o.logger.Ctx(ctx).Warn("Tracking number still unavailable",
			zap.String("order_id", shipment.OrderID),
			zap.String("carrier_reference", shipment.CarrierReference),
			zap.Error(err),
		)
		return nil
	}
	if trackingNumber == "" {
		return nil
	}

	shipment.TrackingNumber = trackingNumber
	if err := o.store.UpdateShipment(ctx, shipment); err != nil {
		return fmt.Errorf("recording tracking number for order %s: %w", shipment.OrderID, err)
	}
	o.logger.Ctx(ctx).Info("Resolved tracking number",
		zap.String("order_id", shipment.OrderID),
		zap.String("tracking_number", trackingNumber),
	)
	return nil
}

// storedTracking answers from persisted state for a shipment that has no
// tracking number yet.
func (o *Orchestrator) storedTracking(ctx context.Context, shipment *store.Shipment) (*TrackingResult, error) {
	records, err := o.store.ListTrackingEvents(ctx, shipment.ID)
	if err != nil {
		return nil, fmt.Errorf("listing tracking events for order %s: %w", shipment.OrderID, err)
	}

	timeline := make([]TimelineEntry, len(records))
	for i, r := range records {
		timeline[i] = TimelineEntry{
			Status:    r.Status,
			Location:  r.Location,
			Timestamp: r.Timestamp,
			Remarks:   r.Remarks,
		}
	}

	lastUpdated := shipment.UpdatedAt
	if shipment.LastTrackedAt != nil {
		lastUpdated = *shipment.LastTrackedAt
	}
	return &TrackingResult{
		OrderID:          shipment.OrderID,
		TrackingPending:  true,
		CarrierName:      shipment.CarrierName,
		Status:           shipment.Status.Label(),
		StatusCode:       shipment.Status,
		ExpectedDelivery: shipment.EstimatedDelivery,
		LastUpdated:      lastUpdated,
		Timeline:         timeline,
	}, nil
}

// CancelShipment cancels an order's shipment at its carrier. Delivered and
// already cancelled shipments are rejected without contacting the carrier.
func (o *Orchestrator) CancelShipment(ctx context.Context, orderID string) error {
	ctx, span := o.startSpan(ctx, "CancelShipment", attribute.String("order_id", orderID))
	defer span.End()

	shipment, err := o.findShipment(ctx, orderID)
	if err != nil {
		recordError(span, err)
		return err
	}

	if shipment.Status.Terminal() {
		return fmt.Errorf("%w: order %s is %s", ErrCancellationNotAllowed, orderID, shipment.Status)
	}

	adapter, err := o.registry.Get(shipment.CarrierType)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}

	start := time.Now()
	ok := adapter.CancelShipment(ctx, &carrier.CancelRequest{
		OrderID:          shipment.OrderID,
		TrackingNumber:   shipment.TrackingNumber,
		CarrierReference: shipment.CarrierReference,
	})
	if !ok {
		o.metrics.RecordRequest("cancel_shipment", string(shipment.CarrierType), "error", time.Since(start).Seconds())
		err := &CancellationError{OrderID: orderID, Carrier: shipment.CarrierType}
		recordError(span, err)
		o.logger.Ctx(ctx).Error("Cancellation failed",
			zap.String("order_id", orderID),
			zap.String("carrier", string(shipment.CarrierType)),
		)
		return err
	}
	o.metrics.RecordRequest("cancel_shipment", string(shipment.CarrierType), "success", time.Since(start).Seconds())

	previous := shipment.Status
	shipment.Status = carrier.StatusCancelled
	shipment.Active = false
	if err := o.store.UpdateShipment(ctx, shipment); err != nil {
		recordError(span, err)
		return fmt.Errorf("recording cancellation for order %s: %w", orderID, err)
	}

	o.metrics.RecordTransition(string(shipment.CarrierType), string(shipment.Status))
	o.publish(ctx, events.TypeShipmentCancelled, shipment, previous)
	o.logger.Ctx(ctx).Info("Shipment cancelled", zap.String("order_id", orderID))
	return nil
}

// ShipmentDetails returns the stored shipment for an order and its events.
func (o *Orchestrator) ShipmentDetails(ctx context.Context, orderID string) (*ShipmentDetails, error) {
	shipment, err := o.findShipment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	records, err := o.store.ListTrackingEvents(ctx, shipment.ID)
	if err != nil {
		return nil, fmt.Errorf("listing tracking events for order %s: %w", orderID, err)
	}
	return &ShipmentDetails{Shipment: shipment, Events: records}, nil
}

// TestServiceability asks every carrier whether it serves a route.
func (o *Orchestrator) TestServiceability(ctx context.Context, pickupPincode, deliveryPincode string) (*ServiceabilityReport, error) {
	if !carrier.ValidPincode(pickupPincode) || !carrier.ValidPincode(deliveryPincode) {
		return nil, fmt.Errorf("%w: pincodes must be 6 digits", carrier.ErrInvalidRequest)
	}

	carriers := o.registry.All()
	results := make([]ServiceabilityResult, len(carriers))

	var g errgroup.Group
	for i, c := range carriers {
		g.Go(func() error {
			results[i] = checkServiceability(ctx, c, pickupPincode, deliveryPincode)
			return nil
		})
	}
	_ = g.Wait()

	return &ServiceabilityReport{
		PickupPincode:   pickupPincode,
		DeliveryPincode: deliveryPincode,
		Results:         results,
	}, nil
}

func checkServiceability(ctx context.Context, c carrier.Carrier, pickup, delivery string) (result ServiceabilityResult) {
	result = ServiceabilityResult{CarrierType: c.Type(), CarrierName: c.Name()}
	defer func() {
		if r := recover(); r != nil {
			result.Serviceable = false
			result.Error = fmt.Sprint(r)
		}
	}()
	result.Serviceable = c.CheckServiceability(ctx, pickup, delivery)
	if r, ok := c.(carrier.BreakerReporter); ok {
		result.BreakerState = r.BreakerState()
	}
	return result
}

// ListWarehouses returns the pickup locations of every carrier that manages
// them. It fails only when every such carrier failed.
func (o *Orchestrator) ListWarehouses(ctx context.Context) ([]CarrierWarehouse, error) {
	var (
		warehouses []CarrierWarehouse
		errs       []error
		listers    int
	)
	for _, c := range o.registry.All() {
		lister, ok := c.(carrier.WarehouseLister)
		if !ok {
			continue
		}
		listers++

		list, err := lister.ListWarehouses(ctx)
		if err != nil {
			o.logger.Ctx(ctx).Warn("Failed to list warehouses",
				zap.String("carrier", string(c.Type())),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", c.Type(), err))
			continue
		}
		for _, w := range list {
			warehouses = append(warehouses, CarrierWarehouse{CarrierType: c.Type(), Warehouse: w})
		}
	}

	if listers > 0 && len(errs) == listers {
		return nil, errors.Join(errs...)
	}
	return warehouses, nil
}

func (o *Orchestrator) findShipment(ctx context.Context, orderID string) (*store.Shipment, error) {
	shipment, err := o.store.FindByOrderID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrShipmentNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up order %s: %w", orderID, err)
	}
	return shipment, nil
}

// publish emits a lifecycle event. Delivery failures are logged; the
// shipment state is already recorded.
func (o *Orchestrator) publish(ctx context.Context, eventType string, s *store.Shipment, previous carrier.Status) {
	event := events.ShipmentEvent{
		Type:           eventType,
		OrderID:        s.OrderID,
		ShipmentID:     s.ID,
		CarrierType:    s.CarrierType,
		TrackingNumber: s.TrackingNumber,
		PreviousStatus: previous,
		Status:         s.Status,
		OccurredAt:     time.Now().UTC(),
	}
	if err := o.publisher.Publish(ctx, s.OrderID, event); err != nil {
		o.logger.Ctx(ctx).Warn("Failed to publish shipment event",
			zap.String("type", eventType),
			zap.String("order_id", s.OrderID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "shipping."+op, trace.WithAttributes(attrs...))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
