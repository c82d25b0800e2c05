package shipping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tournevent/courier/internal/events"
	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/internal/store"
	"github.com/tournevent/courier/pkg/carrier"
	"github.com/tournevent/courier/pkg/carrier/mock"
)

// deliveryPincode matches none of the default regional rules.
const deliveryPincode = "560001"

func rateRequest() *carrier.RateRequest {
	return &carrier.RateRequest{
		PickupPincode:   "302001",
		DeliveryPincode: deliveryPincode,
		Weight:          500,
		PaymentType:     carrier.PaymentPrepaid,
		OrderAmount:     1200,
	}
}

func shipmentRequest(orderID string) *carrier.ShipmentRequest {
	return &carrier.ShipmentRequest{
		RateRequest: *rateRequest(),
		OrderID:     orderID,
		OrderDate:   "2024-03-01",
		Customer: carrier.Customer{
			Name:     "Asha Verma",
			Phone:    "9876543210",
			Address1: "12 MG Road",
			City:     "Bengaluru",
			State:    "Karnataka",
		},
		Items: []carrier.LineItem{
			{Name: "Bedsheet", SKU: "BS-01", Quantity: 1, Price: 1200},
		},
	}
}

type harness struct {
	orchestrator *shipping.Orchestrator
	store        *store.MemoryStore
	events       *events.Recorder
}

func newHarness(t *testing.T, carriers ...carrier.Carrier) *harness {
	t.Helper()
	registry, err := carrier.NewRegistry(carriers...)
	require.NoError(t, err)

	h := &harness{
		store:  store.NewMemoryStore(),
		events: &events.Recorder{},
	}
	h.orchestrator = shipping.NewOrchestrator(shipping.Deps{
		Registry:  registry,
		Selector:  shipping.NewSelector(nil, shipping.DefaultRegionalPreferences()),
		Store:     h.store,
		Publisher: h.events,
	})
	return h
}

func (h *harness) shipment(t *testing.T, orderID string) *store.Shipment {
	t.Helper()
	s, err := h.store.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return s
}

func quote(t carrier.CarrierType, id string, price float64, days string) carrier.CarrierRate {
	return carrier.CarrierRate{
		CarrierType:           t,
		CarrierID:             id,
		CarrierName:           string(t),
		ServiceName:           "Surface",
		Price:                 price,
		EstimatedDeliveryDays: days,
	}
}

func ratesOf(rates ...carrier.CarrierRate) func(context.Context, *carrier.RateRequest) ([]carrier.CarrierRate, error) {
	return func(context.Context, *carrier.RateRequest) ([]carrier.CarrierRate, error) {
		return rates, nil
	}
}

// resolvingCarrier is a mock carrier that can issue tracking numbers late.
type resolvingCarrier struct {
	*mock.Client
	trackingNumber string
	resolveCalls   int
}

func (c *resolvingCarrier) ResolveTrackingNumber(_ context.Context, _ string) (string, error) {
	c.resolveCalls++
	return c.trackingNumber, nil
}

// labelingCarrier is a mock carrier that serves labels separately from booking.
type labelingCarrier struct {
	*mock.Client
}

func (c *labelingCarrier) GetLabel(_ context.Context, trackingNumber string) (string, error) {
	return "https://labels.example/" + trackingNumber + ".pdf", nil
}

// warehouseCarrier is a mock carrier with pickup locations.
type warehouseCarrier struct {
	*mock.Client
	warehouses []carrier.Warehouse
	err        error
}

func (c *warehouseCarrier) ListWarehouses(context.Context) ([]carrier.Warehouse, error) {
	return c.warehouses, c.err
}

// breakerCarrier is a mock carrier that reports a circuit breaker state.
type breakerCarrier struct {
	*mock.Client
	state string
}

func (c *breakerCarrier) BreakerState() string {
	return c.state
}
