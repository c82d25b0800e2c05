// Package shipmozo provides integration with the Shipmozo courier aggregator API.
package shipmozo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const displayName = "Shipmozo"

// statusExtras extends the shared status vocabulary with Shipmozo wording.
var statusExtras = map[string]carrier.Status{
	"pickup_scheduled":           carrier.StatusPending,
	"manifested":                 carrier.StatusPending,
	"not_picked":                 carrier.StatusPending,
	"ready_to_ship":              carrier.StatusPending,
	"reached_at_destination_hub": carrier.StatusInTransit,
	"reached_at_origin_hub":      carrier.StatusInTransit,
	"rto_initiated":              carrier.StatusReturned,
	"rto_in_transit":             carrier.StatusReturned,
	"rto_delivered":              carrier.StatusReturned,
	"lost":                       carrier.StatusFailed,
	"damaged":                    carrier.StatusFailed,
	"ndr":                        carrier.StatusFailed,
}

// Config holds Shipmozo configuration.
type Config struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Timeout    time.Duration
	Retry      carrier.RetryPolicy
	UseMock    bool // When true, uses mock API client
}

// Client is the Shipmozo carrier adapter.
// It implements carrier.Carrier and delegates API calls to the underlying
// APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer

	mu             sync.RWMutex
	defaultPincode string
}

var (
	_ carrier.Carrier                = (*Client)(nil)
	_ carrier.Labeler                = (*Client)(nil)
	_ carrier.WarehouseLister        = (*Client)(nil)
	_ carrier.TrackingNumberResolver = (*Client)(nil)
	_ carrier.BreakerReporter        = (*Client)(nil)
)

// New creates a new Shipmozo client.
// If cfg.UseMock is true, it uses a mock API client.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}

	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		if cfg.PublicKey == "" || cfg.PrivateKey == "" || cfg.BaseURL == "" {
			logger.Warn("Shipmozo credentials not configured",
				zap.Bool("has_public_key", cfg.PublicKey != ""),
				zap.Bool("has_private_key", cfg.PrivateKey != ""),
				zap.String("base_url", cfg.BaseURL),
			)
		}
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:    cfg.BaseURL,
			PublicKey:  cfg.PublicKey,
			PrivateKey: cfg.PrivateKey,
			Timeout:    cfg.Timeout,
			Logger:     logger,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Shipmozo client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/courier/pkg/carrier/shipmozo")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = carrier.DefaultRetryPolicy()
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Type returns the carrier type.
func (c *Client) Type() carrier.CarrierType {
	return carrier.TypeShipmozo
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return displayName
}

// BreakerState reports the HTTP circuit breaker state. It is empty when the
// client runs against the mock API.
func (c *Client) BreakerState() string {
	if r, ok := c.apiClient.(carrier.BreakerReporter); ok {
		return r.BreakerState()
	}
	return ""
}

// LoadDefaultWarehouse caches the pincode of the account's default active
// warehouse. Rate quotes use it as the pickup pincode once loaded.
func (c *Client) LoadDefaultWarehouse(ctx context.Context) error {
	warehouses, err := c.apiClient.GetWarehouses(ctx)
	if err != nil {
		c.logger.Ctx(ctx).Warn("Failed to load default Shipmozo warehouse", zap.Error(err))
		return err
	}

	for _, w := range warehouses {
		if w.Default == "YES" && w.Status == "ACTIVE" {
			c.mu.Lock()
			c.defaultPincode = w.Pincode
			c.mu.Unlock()

			c.logger.Ctx(ctx).Info("Default Shipmozo warehouse loaded",
				zap.Int("warehouse_id", w.ID),
				zap.String("pincode", w.Pincode),
			)
			return nil
		}
	}
	return nil
}

// DefaultPickupPincode returns the cached default warehouse pincode, if any.
func (c *Client) DefaultPickupPincode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultPincode
}

// CheckServiceability reports whether Shipmozo covers the route.
func (c *Client) CheckServiceability(ctx context.Context, pickupPincode, deliveryPincode string) bool {
	ctx, span := c.startSpan(ctx, "CheckServiceability",
		attribute.String("pickup_pincode", pickupPincode),
		attribute.String("delivery_pincode", deliveryPincode),
	)
	defer span.End()

	pickup, err1 := strconv.Atoi(pickupPincode)
	delivery, err2 := strconv.Atoi(deliveryPincode)
	if err1 != nil || err2 != nil {
		c.logger.Ctx(ctx).Warn("Invalid pincode for Shipmozo serviceability",
			zap.String("pickup_pincode", pickupPincode),
			zap.String("delivery_pincode", deliveryPincode),
		)
		return false
	}

	data, err := carrier.Retry(ctx, c.config.Retry, c.logger, "shipmozo.serviceability", func() (*ServiceabilityData, error) {
		return c.apiClient.CheckServiceability(ctx, &ServiceabilityRequest{
			PickupPincode:   pickup,
			DeliveryPincode: delivery,
		})
	})
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Warn("Shipmozo serviceability check failed", zap.Error(err))
		return false
	}

	return data != nil && data.Serviceable
}

// GetRates returns courier quotes from Shipmozo.
func (c *Client) GetRates(ctx context.Context, req *carrier.RateRequest) ([]carrier.CarrierRate, error) {
	if err := carrier.ValidateRateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "GetRates",
		attribute.String("delivery_pincode", req.DeliveryPincode),
		attribute.Float64("weight_grams", req.Weight),
	)
	defer span.End()

	pickupPincode := c.DefaultPickupPincode()
	if pickupPincode == "" {
		pickupPincode = req.PickupPincode
	}

	c.logger.Ctx(ctx).Info("Getting Shipmozo rates",
		zap.String("pickup_pincode", pickupPincode),
		zap.String("delivery_pincode", req.DeliveryPincode),
		zap.String("payment_type", string(req.PaymentType)),
	)

	apiReq := rateRequestToAPI(req, pickupPincode)
	data, err := carrier.Retry(ctx, c.config.Retry, c.logger, "shipmozo.rates", func() ([]RateData, error) {
		return c.apiClient.CalculateRates(ctx, apiReq)
	})
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Error("Shipmozo API error", zap.String("operation", "rate calculation"), zap.Error(err))
		return []carrier.CarrierRate{}, nil
	}

	return ratesToCarrier(data), nil
}

// CreateShipment runs the Shipmozo booking workflow:
// push-order, assign-courier, then schedule-pickup unless the courier picks
// up automatically.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
	if err := carrier.ValidateShipmentRequest(req); err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "CreateShipment", attribute.String("order_id", req.OrderID))
	defer span.End()
	log := c.logger.Ctx(ctx)

	// Step 1: push order
	log.Info("Pushing order to Shipmozo", zap.String("order_id", req.OrderID))
	pushed, err := c.apiClient.PushOrder(ctx, shipmentRequestToAPI(req))
	if err != nil {
		recordError(span, err)
		log.Error("Shipmozo API error", zap.String("operation", "push-order"), zap.Error(err))
		return nil, carrier.NewCarrierError(carrier.TypeShipmozo, carrier.CodeAPIError, "push-order failed").WithCause(err)
	}
	if pushed == nil {
		pushed = &PushOrderData{}
	}
	reference := pushed.OrderID
	if reference == "" {
		reference = req.OrderID
	}

	// Step 2: pick and assign courier
	rate, err := c.courierFor(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, c.incomplete(ctx, "courier selection", reference, err)
	}
	courierID, _ := strconv.Atoi(rate.CarrierID)

	log.Info("Assigning Shipmozo courier",
		zap.String("order_id", req.OrderID),
		zap.Int("courier_id", courierID),
	)
	assigned, err := c.apiClient.AssignCourier(ctx, &AssignCourierRequest{
		OrderID:   req.OrderID,
		CourierID: courierID,
	})
	if err != nil {
		recordError(span, err)
		return nil, c.incomplete(ctx, "assign-courier", reference, err)
	}

	// Step 3: schedule pickup
	autoPickup, _ := rate.Metadata["autoPickup"].(bool)
	var awb string
	if autoPickup {
		log.Info("Shipmozo pickup is automatic", zap.String("order_id", req.OrderID))
	} else {
		log.Info("Scheduling Shipmozo pickup", zap.String("order_id", req.OrderID))
		pickup, err := c.apiClient.SchedulePickup(ctx, &SchedulePickupRequest{OrderID: req.OrderID})
		if err != nil {
			recordError(span, err)
			return nil, c.incomplete(ctx, "schedule-pickup", reference, err)
		}
		if pickup != nil {
			awb = pickup.AWBNumber
		}
	}

	var courierName string
	if assigned != nil {
		courierName = assigned.Courier
	}
	if courierName == "" {
		courierName, _ = rate.Metadata["courierName"].(string)
	}

	log.Info("Shipmozo shipment created",
		zap.String("order_id", req.OrderID),
		zap.String("awb_number", awb),
		zap.Bool("tracking_pending", awb == ""),
	)

	return &carrier.ShipmentResponse{
		Success:           true,
		TrackingNumber:    awb,
		TrackingPending:   awb == "",
		CarrierReference:  reference,
		CarrierID:         rate.CarrierID,
		CarrierName:       courierName,
		EstimatedDelivery: rate.EstimatedDeliveryDays,
		Metadata: map[string]any{
			"shipmozoOrderId":     pushed.OrderID,
			"shipmozoReferenceId": pushed.ReferenceID,
			"courierName":         rate.Metadata["courierName"],
			"courierService":      rate.Metadata["courierService"],
			"autoPickup":          autoPickup,
		},
	}, nil
}

// courierFor returns the rate to book: the selected rate when it belongs to
// Shipmozo, otherwise the cheapest fresh quote.
func (c *Client) courierFor(ctx context.Context, req *carrier.ShipmentRequest) (carrier.CarrierRate, error) {
	if sel := req.SelectedRate; sel != nil && sel.CarrierType == carrier.TypeShipmozo {
		if _, err := strconv.Atoi(sel.CarrierID); err == nil {
			return *sel, nil
		}
	}

	rates, err := c.GetRates(ctx, &req.RateRequest)
	if err != nil {
		return carrier.CarrierRate{}, err
	}
	if len(rates) == 0 {
		return carrier.CarrierRate{}, errors.New("no courier options available")
	}

	best := rates[0]
	for _, r := range rates[1:] {
		if r.Price < best.Price {
			best = r
		}
	}
	return best, nil
}

func (c *Client) incomplete(ctx context.Context, step, reference string, cause error) error {
	c.logger.Ctx(ctx).Error("Shipmozo booking workflow incomplete",
		zap.String("step", step),
		zap.String("reference", reference),
		zap.Error(cause),
	)
	return carrier.NewCarrierError(carrier.TypeShipmozo, carrier.CodeWorkflowIncomplete, step+" failed").
		WithReference(reference).
		WithCause(cause)
}

// TrackShipment fetches tracking information for an AWB.
func (c *Client) TrackShipment(ctx context.Context, trackingNumber string) (*carrier.TrackingStatus, error) {
	ctx, span := c.startSpan(ctx, "TrackShipment", attribute.String("awb_number", trackingNumber))
	defer span.End()

	c.logger.Ctx(ctx).Info("Tracking Shipmozo shipment", zap.String("awb_number", trackingNumber))

	data, err := carrier.Retry(ctx, c.config.Retry, c.logger, "shipmozo.track", func() (*TrackData, error) {
		d, err := c.apiClient.TrackOrder(ctx, trackingNumber)
		if err == nil && d == nil {
			return nil, fmt.Errorf("%w: %s", carrier.ErrShipmentNotFound, trackingNumber)
		}
		return d, notFound(err, trackingNumber)
	})
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Error("Shipmozo API error", zap.String("operation", "tracking"), zap.Error(err))
		return nil, err
	}

	return trackingToCarrier(trackingNumber, data), nil
}

// CancelShipment cancels an order at Shipmozo.
func (c *Client) CancelShipment(ctx context.Context, req *carrier.CancelRequest) bool {
	ctx, span := c.startSpan(ctx, "CancelShipment", attribute.String("order_id", req.OrderID))
	defer span.End()

	orderID := req.CarrierReference
	if orderID == "" {
		orderID = req.OrderID
	}

	c.logger.Ctx(ctx).Info("Cancelling Shipmozo order",
		zap.String("order_id", orderID),
		zap.String("awb_number", req.TrackingNumber),
	)

	err := c.apiClient.CancelOrder(ctx, &CancelOrderRequest{
		OrderID:   orderID,
		AWBNumber: req.TrackingNumber,
	})
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Error("Shipmozo API error", zap.String("operation", "cancellation"), zap.Error(err))
		return false
	}
	return true
}

// GetLabel returns the base64 encoded label for an AWB.
func (c *Client) GetLabel(ctx context.Context, trackingNumber string) (string, error) {
	ctx, span := c.startSpan(ctx, "GetLabel", attribute.String("awb_number", trackingNumber))
	defer span.End()

	labels, err := c.apiClient.GetOrderLabel(ctx, trackingNumber)
	if err != nil {
		recordError(span, err)
		return "", fmt.Errorf("shipmozo label for %s: %w", trackingNumber, err)
	}
	if len(labels) == 0 || labels[0].Label == "" {
		return "", carrier.ErrLabelNotAvailable
	}
	return labels[0].Label, nil
}

// ListWarehouses returns the active pickup locations on the account.
func (c *Client) ListWarehouses(ctx context.Context) ([]carrier.Warehouse, error) {
	ctx, span := c.startSpan(ctx, "ListWarehouses")
	defer span.End()

	data, err := carrier.Retry(ctx, c.config.Retry, c.logger, "shipmozo.warehouses", func() ([]WarehouseData, error) {
		return c.apiClient.GetWarehouses(ctx)
	})
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("shipmozo warehouses: %w", err)
	}

	result := make([]carrier.Warehouse, 0, len(data))
	for _, w := range data {
		if w.Status != "ACTIVE" {
			continue
		}
		result = append(result, warehouseToCarrier(w))
	}
	return result, nil
}

// ResolveTrackingNumber looks up the AWB issued for an order after an
// automatic pickup. It returns "" while Shipmozo has not issued one.
func (c *Client) ResolveTrackingNumber(ctx context.Context, carrierReference string) (string, error) {
	ctx, span := c.startSpan(ctx, "ResolveTrackingNumber", attribute.String("order_id", carrierReference))
	defer span.End()

	data, err := carrier.Retry(ctx, c.config.Retry, c.logger, "shipmozo.order_detail", func() (*OrderDetailData, error) {
		d, err := c.apiClient.GetOrderDetail(ctx, carrierReference)
		return d, notFound(err, carrierReference)
	})
	if err != nil {
		recordError(span, err)
		return "", err
	}
	if data == nil {
		return "", nil
	}
	return strings.TrimSpace(data.AWBNumber), nil
}

func (c *Client) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("carrier", string(carrier.TypeShipmozo)))
	return c.tracer.Start(ctx, "shipmozo."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// notFound turns a rejected lookup into carrier.ErrShipmentNotFound.
func notFound(err error, id string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Code == CodeRejected || apiErr.StatusCode == 404) {
		return fmt.Errorf("%w: %s: %s", carrier.ErrShipmentNotFound, id, apiErr.Message)
	}
	return err
}

// ============================================================================
// Conversion helpers: carrier models -> API models
// ============================================================================

func codAmount(req *carrier.RateRequest) string {
	if req.PaymentType != carrier.PaymentCOD {
		return ""
	}
	return strconv.FormatFloat(req.CODValue(), 'f', -1, 64)
}

func rateRequestToAPI(req *carrier.RateRequest, pickupPincode string) *RateCalculatorRequest {
	pickup, _ := strconv.Atoi(pickupPincode)
	delivery, _ := strconv.Atoi(req.DeliveryPincode)
	box := req.Dimensions.BoxOrDefault()

	return &RateCalculatorRequest{
		PickupPincode:   pickup,
		DeliveryPincode: delivery,
		PaymentType:     string(req.PaymentType),
		ShipmentType:    "FORWARD",
		OrderAmount:     req.OrderAmount,
		TypeOfPackage:   "SPS",
		RovType:         "ROV_OWNER",
		CODAmount:       codAmount(req),
		Weight:          req.Weight,
		Dimensions: []BoxDimensions{
			{
				NoOfBox: "1",
				Length:  formatCM(box.Length),
				Width:   formatCM(box.Width),
				Height:  formatCM(box.Height),
			},
		},
	}
}

func shipmentRequestToAPI(req *carrier.ShipmentRequest) *PushOrderRequest {
	delivery, _ := strconv.Atoi(req.DeliveryPincode)
	box := req.Dimensions.BoxOrDefault()

	products := make([]ProductDetail, len(req.Items))
	for i, item := range req.Items {
		products[i] = ProductDetail{
			Name:            item.Name,
			SKUNumber:       item.SKU,
			Quantity:        item.Quantity,
			UnitPrice:       item.Price,
			ProductCategory: "Other",
		}
	}

	return &PushOrderRequest{
		OrderID:                 req.OrderID,
		OrderDate:               req.OrderDate,
		OrderType:               "ESSENTIALS",
		ConsigneeName:           req.Customer.Name,
		ConsigneePhone:          req.Customer.Phone,
		ConsigneeAlternatePhone: req.Customer.Phone,
		ConsigneeEmail:          req.Customer.Email,
		ConsigneeAddressLine1:   req.Customer.Address1,
		ConsigneeAddressLine2:   req.Customer.Address2,
		ConsigneePinCode:        delivery,
		ConsigneeCity:           req.Customer.City,
		ConsigneeState:          req.Customer.State,
		ProductDetail:           products,
		PaymentType:             string(req.PaymentType),
		CODAmount:               codAmount(&req.RateRequest),
		Weight:                  req.Weight,
		Length:                  box.Length,
		Width:                   box.Width,
		Height:                  box.Height,
		WarehouseID:             req.WarehouseID,
	}
}

func formatCM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ============================================================================
// Conversion helpers: API models -> carrier models
// ============================================================================

func ratesToCarrier(data []RateData) []carrier.CarrierRate {
	rates := make([]carrier.CarrierRate, 0, len(data))
	for _, r := range data {
		service := r.CourierService
		if service == "" {
			service = "Standard"
		}
		days := r.EstimatedDeliveryDays
		if days == "" {
			days = "3-5 days"
		}

		rates = append(rates, carrier.CarrierRate{
			CarrierType:           carrier.TypeShipmozo,
			CarrierID:             strconv.Itoa(r.CourierID),
			CarrierName:           displayName,
			ServiceName:           service,
			Price:                 r.Rate,
			EstimatedDeliveryDays: days,
			CODAvailable:          r.CODAvailable == nil || *r.CODAvailable,
			Metadata: map[string]any{
				"courierId":      r.CourierID,
				"courierName":    r.CourierName,
				"courierService": r.CourierService,
				"autoPickup":     r.AutoPickup == "YES",
				"minWeight":      r.MinimumWeight,
				"maxWeight":      r.MaximumWeight,
			},
		})
	}
	return rates
}

func trackingToCarrier(trackingNumber string, data *TrackData) *carrier.TrackingStatus {
	statusTime, statusOK := carrier.ParseTimestamp(data.StatusTime)

	events := make([]carrier.TrackingEvent, 0, len(data.ScanDetail))
	for i, scan := range data.ScanDetail {
		events = append(events, carrier.TrackingEvent{
			Status:    scan.Status,
			Location:  scan.Location,
			Timestamp: carrier.ScanTime(scan.Timestamp, statusTime, i),
			Remarks:   scan.Remarks,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	current := data.CurrentStatus
	if current == "" {
		current = "Unknown"
	}

	lastUpdated := statusTime
	if !statusOK {
		lastUpdated = time.Now()
	}

	var location string
	if len(events) > 0 {
		location = events[0].Location
	}

	return &carrier.TrackingStatus{
		TrackingNumber:   trackingNumber,
		CurrentStatus:    current,
		StatusCode:       carrier.NormalizeStatus(current, statusExtras),
		ExpectedDelivery: data.ExpectedDeliveryDate,
		Location:         location,
		LastUpdated:      lastUpdated,
		Events:           events,
	}
}

func warehouseToCarrier(w WarehouseData) carrier.Warehouse {
	return carrier.Warehouse{
		ID:      strconv.Itoa(w.ID),
		Title:   w.AddressTitle,
		Name:    w.Name,
		Email:   w.Email,
		Phone:   w.Phone,
		Pincode: w.Pincode,
		City:    w.City,
		State:   w.State,
		Default: w.Default == "YES",
		Active:  w.Status == "ACTIVE",
	}
}
