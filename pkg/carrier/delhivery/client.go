// Package delhivery provides integration with the Delhivery B2C API.
package delhivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tournevent/courier/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const displayName = "Delhivery"

// Delhivery uses "Pending" for shipments still moving and "Dispatched" for
// shipments out with a delivery agent.
var statusExtras = map[string]carrier.Status{
	"manifested": carrier.StatusPending,
	"not_picked": carrier.StatusPending,
	"pending":    carrier.StatusInTransit,
	"dispatched": carrier.StatusOutForDelivery,
	"lost":       carrier.StatusFailed,
	"not_found":  carrier.StatusFailed,
	"dto":        carrier.StatusReturned,
	"closed":     carrier.StatusCancelled,
}

type service struct {
	mode     string
	id       string
	name     string
	shipping string
	days     string
}

var services = []service{
	{mode: ModeExpress, id: "express", name: "Express", shipping: "Express", days: "1-3 days"},
	{mode: ModeSurface, id: "surface", name: "Surface", shipping: "Surface", days: "3-6 days"},
}

func serviceByID(id string) (service, bool) {
	for _, s := range services {
		if s.id == id {
			return s, true
		}
	}
	return service{}, false
}

// Config holds Delhivery configuration.
type Config struct {
	BaseURL        string
	Token          string
	PickupLocation string // registered warehouse name used for manifests and pickups
	Timeout        time.Duration
	Retry          carrier.RetryPolicy
	UseMock        bool
}

// Client is the Delhivery carrier adapter.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

var (
	_ carrier.Carrier         = (*Client)(nil)
	_ carrier.Labeler         = (*Client)(nil)
	_ carrier.BreakerReporter = (*Client)(nil)
)

// New creates a new Delhivery client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}

	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		if cfg.Token == "" || cfg.BaseURL == "" {
			logger.Warn("Delhivery credentials not configured",
				zap.Bool("has_token", cfg.Token != ""),
				zap.String("base_url", cfg.BaseURL),
			)
		}
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Delhivery client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/tournevent/courier/pkg/carrier/delhivery")
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
	return carrier.TypeDelhivery
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

// CheckServiceability reports whether Delhivery picks up at the origin and
// delivers to the destination.
func (c *Client) CheckServiceability(ctx context.Context, pickupPincode, deliveryPincode string) bool {
	ctx, span := c.startSpan(ctx, "CheckServiceability",
		attribute.String("pickup_pincode", pickupPincode),
		attribute.String("delivery_pincode", deliveryPincode),
	)
	defer span.End()

	origin, err := c.pincode(ctx, pickupPincode)
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Warn("Delhivery serviceability check failed", zap.String("pincode", pickupPincode), zap.Error(err))
		return false
	}
	dest, err := c.pincode(ctx, deliveryPincode)
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Warn("Delhivery serviceability check failed", zap.String("pincode", deliveryPincode), zap.Error(err))
		return false
	}

	if origin == nil || dest == nil {
		return false
	}
	return origin.Pickup == "Y" && (dest.PrePaid == "Y" || dest.COD == "Y")
}

func (c *Client) pincode(ctx context.Context, pin string) (*PostalCode, error) {
	resp, err := carrier.Retry(ctx, c.config.Retry, c.logger, "delhivery.pincode", func() (*PincodeResponse, error) {
		return c.apiClient.GetPincode(ctx, pin)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.DeliveryCodes) == 0 {
		return nil, nil
	}
	return &resp.DeliveryCodes[0].PostalCode, nil
}

// GetRates quotes Express and Surface delivery.
func (c *Client) GetRates(ctx context.Context, req *carrier.RateRequest) ([]carrier.CarrierRate, error) {
	if err := carrier.ValidateRateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "GetRates",
		attribute.String("delivery_pincode", req.DeliveryPincode),
		attribute.Float64("weight_grams", req.Weight),
	)
	defer span.End()

	c.logger.Ctx(ctx).Info("Getting Delhivery rates",
		zap.String("pickup_pincode", req.PickupPincode),
		zap.String("delivery_pincode", req.DeliveryPincode),
	)

	rates := make([]carrier.CarrierRate, 0, len(services))
	for _, svc := range services {
		apiReq := chargesRequestToAPI(req, svc.mode)
		charges, err := carrier.Retry(ctx, c.config.Retry, c.logger, "delhivery.charges", func() ([]ChargeData, error) {
			return c.apiClient.GetCharges(ctx, apiReq)
		})
		if err != nil {
			recordError(span, err)
			c.logger.Ctx(ctx).Error("Delhivery API error",
				zap.String("operation", "rate calculation"),
				zap.String("mode", svc.mode),
				zap.Error(err),
			)
			continue
		}
		if len(charges) == 0 || charges[0].TotalAmount <= 0 {
			continue
		}

		rates = append(rates, carrier.CarrierRate{
			CarrierType:           carrier.TypeDelhivery,
			CarrierID:             svc.id,
			CarrierName:           displayName,
			ServiceName:           svc.name,
			Price:                 charges[0].TotalAmount,
			EstimatedDeliveryDays: svc.days,
			CODAvailable:          true,
			Metadata: map[string]any{
				"mode":          svc.mode,
				"zone":          charges[0].Zone,
				"chargedWeight": charges[0].ChargedWeight,
			},
		})
	}
	return rates, nil
}

// CreateShipment manifests the shipment and raises a pickup request.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
	if err := carrier.ValidateShipmentRequest(req); err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, "CreateShipment", attribute.String("order_id", req.OrderID))
	defer span.End()
	log := c.logger.Ctx(ctx)

	svc := services[1]
	if sel := req.SelectedRate; sel != nil && sel.CarrierType == carrier.TypeDelhivery {
		if s, ok := serviceByID(sel.CarrierID); ok {
			svc = s
		}
	}

	// Step 1: manifest
	log.Info("Creating Delhivery order",
		zap.String("order_id", req.OrderID),
		zap.String("mode", svc.shipping),
	)
	created, err := c.apiClient.CreateOrder(ctx, createOrderRequestToAPI(req, svc, c.config.PickupLocation))
	if err != nil {
		recordError(span, err)
		log.Error("Delhivery API error", zap.String("operation", "create"), zap.Error(err))
		return nil, carrier.NewCarrierError(carrier.TypeDelhivery, carrier.CodeAPIError, "create order failed").WithCause(err)
	}
	if created == nil {
		log.Error("Delhivery returned an empty create response", zap.String("order_id", req.OrderID))
		return nil, carrier.NewCarrierError(carrier.TypeDelhivery, carrier.CodeAPIError, "create order returned no body")
	}
	if !created.Success || len(created.Packages) == 0 || created.Packages[0].Waybill == "" {
		msg := created.Remark
		if len(created.Packages) > 0 && len(created.Packages[0].Remarks) > 0 {
			msg = strings.Join(created.Packages[0].Remarks, "; ")
		}
		log.Error("Delhivery rejected order", zap.String("order_id", req.OrderID), zap.String("remark", msg))
		return nil, carrier.NewCarrierError(carrier.TypeDelhivery, carrier.CodeAPIError, "order rejected: "+msg)
	}
	waybill := created.Packages[0].Waybill

	// Step 2: pickup request
	pickupDate := time.Now().In(istZone).AddDate(0, 0, 1).Format("2006-01-02")
	log.Info("Requesting Delhivery pickup",
		zap.String("waybill", waybill),
		zap.String("pickup_date", pickupDate),
	)
	pickup, err := c.apiClient.CreatePickupRequest(ctx, &PickupRequest{
		PickupTime:           "11:00:00",
		PickupDate:           pickupDate,
		PickupLocation:       c.config.PickupLocation,
		ExpectedPackageCount: 1,
	})
	if err == nil && pickup == nil {
		err = errors.New("pickup request returned no body")
	}
	if err == nil && pickup.Error != "" && !pickup.AlreadyExist {
		err = fmt.Errorf("pickup request rejected: %s", pickup.Error)
	}
	if err != nil {
		recordError(span, err)
		log.Error("Delhivery booking workflow incomplete",
			zap.String("step", "pickup-request"),
			zap.String("waybill", waybill),
			zap.Error(err),
		)
		return nil, carrier.NewCarrierError(carrier.TypeDelhivery, carrier.CodeWorkflowIncomplete, "pickup-request failed").
			WithReference(waybill).
			WithCause(err)
	}

	log.Info("Delhivery shipment created",
		zap.String("order_id", req.OrderID),
		zap.String("waybill", waybill),
	)

	return &carrier.ShipmentResponse{
		Success:           true,
		TrackingNumber:    waybill,
		CarrierReference:  waybill,
		CarrierID:         svc.id,
		CarrierName:       displayName,
		EstimatedDelivery: svc.days,
		Metadata: map[string]any{
			"pickupId":      pickup.PickupID,
			"pickupDate":    pickupDate,
			"shippingMode":  svc.shipping,
			"pickupExisted": pickup.AlreadyExist,
		},
	}, nil
}

// TrackShipment fetches tracking information for a waybill.
func (c *Client) TrackShipment(ctx context.Context, trackingNumber string) (*carrier.TrackingStatus, error) {
	ctx, span := c.startSpan(ctx, "TrackShipment", attribute.String("waybill", trackingNumber))
	defer span.End()

	c.logger.Ctx(ctx).Info("Tracking Delhivery shipment", zap.String("waybill", trackingNumber))

	resp, err := carrier.Retry(ctx, c.config.Retry, c.logger, "delhivery.track", func() (*TrackResponse, error) {
		r, err := c.apiClient.TrackPackage(ctx, trackingNumber)
		if err != nil {
			return nil, err
		}
		if r == nil || r.Error != "" || len(r.ShipmentData) == 0 {
			return nil, fmt.Errorf("%w: %s", carrier.ErrShipmentNotFound, trackingNumber)
		}
		return r, nil
	})
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Error("Delhivery API error", zap.String("operation", "tracking"), zap.Error(err))
		return nil, err
	}

	return trackingToCarrier(trackingNumber, &resp.ShipmentData[0].Shipment), nil
}

// CancelShipment cancels a manifested waybill.
func (c *Client) CancelShipment(ctx context.Context, req *carrier.CancelRequest) bool {
	ctx, span := c.startSpan(ctx, "CancelShipment", attribute.String("waybill", req.TrackingNumber))
	defer span.End()

	waybill := req.TrackingNumber
	if waybill == "" {
		waybill = req.CarrierReference
	}
	if waybill == "" {
		c.logger.Ctx(ctx).Warn("Cannot cancel Delhivery shipment without waybill", zap.String("order_id", req.OrderID))
		return false
	}

	c.logger.Ctx(ctx).Info("Cancelling Delhivery shipment", zap.String("waybill", waybill))

	resp, err := c.apiClient.EditPackage(ctx, &EditRequest{Waybill: waybill, Cancellation: "true"})
	if err != nil {
		recordError(span, err)
		c.logger.Ctx(ctx).Error("Delhivery API error", zap.String("operation", "cancellation"), zap.Error(err))
		return false
	}
	if resp == nil || !resp.Status {
		var remark string
		if resp != nil {
			remark = resp.Remark
		}
		c.logger.Ctx(ctx).Warn("Delhivery refused cancellation",
			zap.String("waybill", waybill),
			zap.String("remark", remark),
		)
		return false
	}
	return true
}

// GetLabel returns the packing slip download link for a waybill.
func (c *Client) GetLabel(ctx context.Context, trackingNumber string) (string, error) {
	ctx, span := c.startSpan(ctx, "GetLabel", attribute.String("waybill", trackingNumber))
	defer span.End()

	resp, err := c.apiClient.GetPackingSlip(ctx, trackingNumber)
	if err != nil {
		recordError(span, err)
		return "", fmt.Errorf("delhivery label for %s: %w", trackingNumber, err)
	}
	if resp == nil || len(resp.Packages) == 0 || resp.Packages[0].PDFDownloadLink == "" {
		return "", carrier.ErrLabelNotAvailable
	}
	return resp.Packages[0].PDFDownloadLink, nil
}

func (c *Client) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("carrier", string(carrier.TypeDelhivery)))
	return c.tracer.Start(ctx, "delhivery."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var istZone = time.FixedZone("IST", 5*60*60+30*60)

// ============================================================================
// Conversion helpers: carrier models -> API models
// ============================================================================

func paymentType(p carrier.PaymentType) string {
	if p == carrier.PaymentCOD {
		return "COD"
	}
	return "Pre-paid"
}

func chargesRequestToAPI(req *carrier.RateRequest, mode string) *ChargesRequest {
	out := &ChargesRequest{
		Mode:            mode,
		OriginPin:       req.PickupPincode,
		DestinationPin:  req.DeliveryPincode,
		ChargeableGrams: req.Weight,
		PaymentType:     paymentType(req.PaymentType),
	}
	if req.PaymentType == carrier.PaymentCOD {
		out.CODAmount = req.CODValue()
	}
	return out
}

func createOrderRequestToAPI(req *carrier.ShipmentRequest, svc service, pickupLocation string) *CreateOrderRequest {
	box := req.Dimensions.BoxOrDefault()

	names := make([]string, len(req.Items))
	quantity := 0
	for i, item := range req.Items {
		names[i] = item.Name
		quantity += item.Quantity
	}

	address := req.Customer.Address1
	if req.Customer.Address2 != "" {
		address += ", " + req.Customer.Address2
	}

	mode := "Prepaid"
	var cod float64
	if req.PaymentType == carrier.PaymentCOD {
		mode = "COD"
		cod = req.CODValue()
	}

	return &CreateOrderRequest{
		Shipments: []OrderShipment{
			{
				Name:           req.Customer.Name,
				Add:            address,
				Pin:            req.DeliveryPincode,
				City:           req.Customer.City,
				State:          req.Customer.State,
				Country:        "India",
				Phone:          req.Customer.Phone,
				Order:          req.OrderID,
				PaymentMode:    mode,
				CODAmount:      cod,
				TotalAmount:    req.OrderAmount,
				ProductsDesc:   strings.Join(names, ", "),
				Quantity:       strconv.Itoa(quantity),
				OrderDate:      req.OrderDate,
				Weight:         req.Weight,
				ShipmentLength: box.Length,
				ShipmentWidth:  box.Width,
				ShipmentHeight: box.Height,
				ShippingMode:   svc.shipping,
			},
		},
		PickupLocation: PickupLocation{Name: pickupLocation},
	}
}

// ============================================================================
// Conversion helpers: API models -> carrier models
// ============================================================================

func trackingToCarrier(trackingNumber string, s *TrackedShipment) *carrier.TrackingStatus {
	statusTime, statusOK := carrier.ParseTimestamp(s.Status.StatusDateTime)

	events := make([]carrier.TrackingEvent, 0, len(s.Scans))
	for i, scan := range s.Scans {
		events = append(events, carrier.TrackingEvent{
			Status:    scan.ScanDetail.Scan,
			Location:  scan.ScanDetail.ScannedLocation,
			Timestamp: carrier.ScanTime(scan.ScanDetail.ScanDateTime, statusTime, i),
			Remarks:   scan.ScanDetail.Instructions,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	current := s.Status.Status
	if current == "" {
		current = "Unknown"
	}

	lastUpdated := statusTime
	if !statusOK {
		lastUpdated = time.Now()
	}

	return &carrier.TrackingStatus{
		TrackingNumber:   trackingNumber,
		CurrentStatus:    current,
		StatusCode:       carrier.NormalizeStatus(current, statusExtras),
		ExpectedDelivery: s.ExpectedDeliveryDate,
		Location:         s.Status.StatusLocation,
		LastUpdated:      lastUpdated,
		Events:           events,
	}
}
