package shipping_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tournevent/courier/internal/events"
	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/internal/store"
	"github.com/tournevent/courier/pkg/carrier"
	"github.com/tournevent/courier/pkg/carrier/mock"
)

func TestGetDeliveryOptions(t *testing.T) {
	h := newHarness(t, mock.New(carrier.TypeShipmozo))

	options, err := h.orchestrator.GetDeliveryOptions(context.Background(), rateRequest())
	require.NoError(t, err)
	require.Len(t, options, 2)

	assert.Equal(t, shipping.DeliveryOption{
		ID:           "shipmozo_1",
		Name:         "4-6 days Delivery",
		DeliveryTime: "4-6 days",
		Price:        80,
		CODAvailable: true,
		Recommended:  true,
	}, options[0])
	assert.Equal(t, "shipmozo_2", options[1].ID)
	assert.False(t, options[1].Recommended)
}

func TestGetDeliveryOptions_RejectsInvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*carrier.RateRequest)
	}{
		{"short pickup pincode", func(r *carrier.RateRequest) { r.PickupPincode = "30200" }},
		{"alphabetic delivery pincode", func(r *carrier.RateRequest) { r.DeliveryPincode = "56000A" }},
		{"zero weight", func(r *carrier.RateRequest) { r.Weight = 0 }},
		{"negative weight", func(r *carrier.RateRequest) { r.Weight = -10 }},
		{"cod without amount", func(r *carrier.RateRequest) { r.PaymentType = carrier.PaymentCOD }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mock.New(carrier.TypeShipmozo)
			h := newHarness(t, c)
			req := rateRequest()
			tt.mutate(req)

			_, err := h.orchestrator.GetDeliveryOptions(context.Background(), req)
			assert.ErrorIs(t, err, carrier.ErrInvalidRequest)
			assert.Zero(t, c.ServiceabilityCalls())
			assert.Zero(t, c.RateCalls())
		})
	}
}

func TestGetDeliveryOptions_NoCarrierServes(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnCheckServiceability = func(context.Context, string, string) bool { return false }
	h := newHarness(t, c)

	_, err := h.orchestrator.GetDeliveryOptions(context.Background(), rateRequest())
	assert.ErrorIs(t, err, shipping.ErrNoDeliveryOptions)
}

func TestBestDeliveryOption(t *testing.T) {
	h := newHarness(t, mock.New(carrier.TypeShipmozo))

	cheapest, err := h.orchestrator.BestDeliveryOption(context.Background(), rateRequest(), shipping.PreferCheapest)
	require.NoError(t, err)
	assert.Equal(t, "shipmozo_1", cheapest.ID)
	assert.Equal(t, 80.0, cheapest.Price)
	assert.True(t, cheapest.Recommended)

	fastest, err := h.orchestrator.BestDeliveryOption(context.Background(), rateRequest(), shipping.PreferFastest)
	require.NoError(t, err)
	assert.Equal(t, "shipmozo_2", fastest.ID)
	assert.Equal(t, "1-2 days", fastest.DeliveryTime)

	_, err = h.orchestrator.BestDeliveryOption(context.Background(), rateRequest(), "SOONEST")
	assert.ErrorIs(t, err, carrier.ErrInvalidRequest)
}

func TestBestDeliveryOption_NoCarrierServes(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnCheckServiceability = func(context.Context, string, string) bool { return false }
	h := newHarness(t, c)

	_, err := h.orchestrator.BestDeliveryOption(context.Background(), rateRequest(), shipping.PreferFastest)
	assert.ErrorIs(t, err, shipping.ErrNoDeliveryOptions)
}

func TestCreateShipment(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	var booked *carrier.CarrierRate
	c.OnCreateShipment = func(_ context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
		booked = req.SelectedRate
		return &carrier.ShipmentResponse{
			Success:          true,
			TrackingNumber:   "AWB100",
			CarrierReference: "SM-" + req.OrderID,
			CarrierID:        req.SelectedRate.CarrierID,
			CarrierName:      "Shipmozo",
			LabelURL:         "https://labels.example/AWB100.pdf",
			Metadata:         map[string]any{"courier_id": req.SelectedRate.CarrierID},
		}, nil
	}
	h := newHarness(t, c)

	result, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	// Standard scores 74, Express 83.
	require.NotNil(t, booked)
	assert.Equal(t, "1", booked.CarrierID)

	assert.True(t, result.Success)
	assert.Equal(t, "ORD-1", result.OrderID)
	assert.Equal(t, "AWB100", result.TrackingNumber)
	assert.False(t, result.TrackingPending)
	assert.Equal(t, "4-6 days", result.EstimatedDelivery)
	assert.Equal(t, 80.0, result.ShippingCost)
	assert.Equal(t, carrier.TypeShipmozo, result.CarrierType)

	s := h.shipment(t, "ORD-1")
	assert.Equal(t, carrier.StatusPending, s.Status)
	assert.True(t, s.Active)
	assert.Equal(t, "AWB100", s.TrackingNumber)
	assert.Equal(t, "SM-ORD-1", s.CarrierReference)
	assert.Equal(t, 80.0, s.ShippingCost)
	assert.Equal(t, "https://labels.example/AWB100.pdf", s.LabelURL)
	assert.Equal(t, "1", s.Metadata["courier_id"])

	assert.Equal(t, []string{events.TypeShipmentCreated}, h.events.Types())
	assert.Equal(t, "ORD-1", h.events.Events()[0].OrderID)
}

func TestCreateShipment_RejectsInvalidRequest(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)
	req := shipmentRequest("ORD-1")
	req.DeliveryPincode = "1234"

	_, err := h.orchestrator.CreateShipment(context.Background(), req)
	assert.ErrorIs(t, err, carrier.ErrInvalidRequest)
	assert.Zero(t, c.RateCalls())
	assert.Zero(t, c.CreateCalls())
}

func TestCreateShipment_DuplicateOrder(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)

	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	_, err = h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	assert.ErrorIs(t, err, shipping.ErrShipmentExists)
	assert.Equal(t, 1, c.CreateCalls())
}

func TestCreateShipment_NoDeliveryOptions(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnGetRates = ratesOf()
	h := newHarness(t, c)

	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	assert.ErrorIs(t, err, shipping.ErrNoDeliveryOptions)
	assert.Zero(t, c.CreateCalls())
}

func TestCreateShipment_RegionalCarrierBooked(t *testing.T) {
	shipmozo := mock.New(carrier.TypeShipmozo)
	delhivery := mock.New(carrier.TypeDelhivery)
	delhivery.OnGetRates = ratesOf(quote(carrier.TypeDelhivery, "S", 300, "5-7 days"))
	h := newHarness(t, shipmozo, delhivery)

	req := shipmentRequest("ORD-1")
	req.DeliveryPincode = "110001"

	result, err := h.orchestrator.CreateShipment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, carrier.TypeDelhivery, result.CarrierType)
	assert.Equal(t, 1, delhivery.CreateCalls())
	assert.Zero(t, shipmozo.CreateCalls())
}

func TestCreateShipment_CarrierFailure(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
		return nil, carrier.NewCarrierError(carrier.TypeShipmozo, carrier.CodeWorkflowIncomplete, "courier assignment failed").
			WithReference("SM-42").
			WithCause(errors.New("courier not available"))
	}
	h := newHarness(t, c)

	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.Error(t, err)

	var creationErr *shipping.ShipmentCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, "ORD-1", creationErr.OrderID)
	assert.Equal(t, carrier.TypeShipmozo, creationErr.Carrier)
	assert.Equal(t, "SM-42", creationErr.Reference)
	assert.ErrorIs(t, err, carrier.ErrWorkflowIncomplete)

	_, err = h.store.FindByOrderID(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, h.events.Events())
}

func TestCreateShipment_UnsuccessfulResponse(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
		return &carrier.ShipmentResponse{Success: false}, nil
	}
	h := newHarness(t, c)

	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	var creationErr *shipping.ShipmentCreationError
	assert.ErrorAs(t, err, &creationErr)
}

func TestCreateShipment_FetchesLabel(t *testing.T) {
	c := &labelingCarrier{Client: mock.New(carrier.TypeShipmozo)}
	c.OnCreateShipment = func(_ context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
		return &carrier.ShipmentResponse{Success: true, TrackingNumber: "AWB7", CarrierReference: req.OrderID}, nil
	}
	h := newHarness(t, c)

	result, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)
	assert.Equal(t, "https://labels.example/AWB7.pdf", result.LabelURL)
	assert.Equal(t, "https://labels.example/AWB7.pdf", h.shipment(t, "ORD-1").LabelURL)
}

func TestCreateThenTrack_ReportsPending(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)

	created, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	tracked, err := h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, carrier.StatusPending, tracked.StatusCode)
	assert.Equal(t, "Order Confirmed", tracked.Status)
	assert.Equal(t, created.TrackingNumber, tracked.TrackingNumber)
	assert.Equal(t, 1, c.TrackCalls())

	s := h.shipment(t, "ORD-1")
	assert.Equal(t, carrier.StatusPending, s.Status)
	assert.NotNil(t, s.LastTrackedAt)
	assert.Equal(t, []string{events.TypeShipmentCreated}, h.events.Types())
}

func TestTrackShipment_NotFound(t *testing.T) {
	h := newHarness(t, mock.New(carrier.TypeShipmozo))
	_, err := h.orchestrator.TrackShipment(context.Background(), "missing")
	assert.ErrorIs(t, err, shipping.ErrShipmentNotFound)
}

func TestTrackShipment_AppliesTransitionsAndDeduplicatesEvents(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)
	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	base := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	scans := []carrier.TrackingEvent{
		{Status: "In Transit", Location: "Delhi Hub", Timestamp: base.Add(8 * time.Hour)},
		{Status: "Picked Up", Location: "Jaipur", Timestamp: base},
	}
	reported := carrier.StatusInTransit
	c.OnTrackShipment = func(_ context.Context, trackingNumber string) (*carrier.TrackingStatus, error) {
		return &carrier.TrackingStatus{
			TrackingNumber: trackingNumber,
			CurrentStatus:  string(reported),
			StatusCode:     reported,
			Location:       "Delhi Hub",
			LastUpdated:    base.Add(8 * time.Hour),
			Events:         scans,
		}, nil
	}

	result, err := h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, carrier.StatusInTransit, result.StatusCode)
	assert.Equal(t, "On the Way", result.Status)
	assert.Equal(t, "Delhi Hub", result.CurrentLocation)
	require.Len(t, result.Timeline, 2)
	assert.Equal(t, "In Transit", result.Timeline[0].Status)

	// Tracking again with the same scans stores nothing new.
	_, err = h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)

	details, err := h.orchestrator.ShipmentDetails(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, carrier.StatusInTransit, details.Shipment.Status)
	require.Len(t, details.Events, 2)
	assert.Equal(t, "In Transit", details.Events[0].Status)

	assert.Equal(t, []string{events.TypeShipmentCreated, events.TypeShipmentStatusChanged}, h.events.Types())
	changed := h.events.Events()[1]
	assert.Equal(t, carrier.StatusPending, changed.PreviousStatus)
	assert.Equal(t, carrier.StatusInTransit, changed.Status)

	// A stale or unrecognised report never moves the shipment backwards.
	for _, stale := range []carrier.Status{carrier.StatusPending, carrier.StatusUnknown} {
		reported = stale
		result, err = h.orchestrator.TrackShipment(context.Background(), "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, carrier.StatusInTransit, result.StatusCode)
	}
	assert.Equal(t, carrier.StatusInTransit, h.shipment(t, "ORD-1").Status)
	assert.Len(t, h.events.Events(), 2)
}

func TestTrackShipment_CarrierError(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)
	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	c.OnTrackShipment = func(context.Context, string) (*carrier.TrackingStatus, error) {
		return nil, carrier.ErrServiceUnavailable
	}
	_, err = h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, carrier.ErrServiceUnavailable)
	assert.Nil(t, h.shipment(t, "ORD-1").LastTrackedAt)
}

func pendingBooking(_ context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResponse, error) {
	return &carrier.ShipmentResponse{
		Success:          true,
		TrackingPending:  true,
		CarrierReference: "SM-" + req.OrderID,
		CarrierName:      "Shipmozo",
	}, nil
}

func TestTrackShipment_PendingTrackingNumber(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnCreateShipment = pendingBooking
	h := newHarness(t, c)

	created, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)
	assert.True(t, created.TrackingPending)
	assert.Empty(t, created.TrackingNumber)

	tracked, err := h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.True(t, tracked.TrackingPending)
	assert.Equal(t, carrier.StatusPending, tracked.StatusCode)
	assert.Empty(t, tracked.Timeline)
	assert.Zero(t, c.TrackCalls())
}

func TestTrackShipment_ResolvesTrackingNumber(t *testing.T) {
	c := &resolvingCarrier{Client: mock.New(carrier.TypeShipmozo)}
	c.OnCreateShipment = pendingBooking
	var trackedNumber string
	c.OnTrackShipment = func(_ context.Context, trackingNumber string) (*carrier.TrackingStatus, error) {
		trackedNumber = trackingNumber
		return &carrier.TrackingStatus{TrackingNumber: trackingNumber, StatusCode: carrier.StatusPending}, nil
	}
	h := newHarness(t, c)

	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	// Not issued yet.
	tracked, err := h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.True(t, tracked.TrackingPending)
	assert.Equal(t, 1, c.resolveCalls)

	c.trackingNumber = "AWB-LATE"
	tracked, err = h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.False(t, tracked.TrackingPending)
	assert.Equal(t, "AWB-LATE", tracked.TrackingNumber)
	assert.Equal(t, "AWB-LATE", trackedNumber)
	assert.Equal(t, "AWB-LATE", h.shipment(t, "ORD-1").TrackingNumber)

	// Once resolved the carrier is not asked again.
	_, err = h.orchestrator.TrackShipment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.resolveCalls)
}

func TestCancelShipment(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	var got *carrier.CancelRequest
	c.OnCancelShipment = func(_ context.Context, req *carrier.CancelRequest) bool {
		got = req
		return true
	}
	h := newHarness(t, c)
	created, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	require.NoError(t, h.orchestrator.CancelShipment(context.Background(), "ORD-1"))

	require.NotNil(t, got)
	assert.Equal(t, "ORD-1", got.OrderID)
	assert.Equal(t, created.TrackingNumber, got.TrackingNumber)
	assert.Equal(t, "ref-ORD-1", got.CarrierReference)

	s := h.shipment(t, "ORD-1")
	assert.Equal(t, carrier.StatusCancelled, s.Status)
	assert.False(t, s.Active)
	assert.Equal(t, []string{events.TypeShipmentCreated, events.TypeShipmentCancelled}, h.events.Types())

	err = h.orchestrator.CancelShipment(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, shipping.ErrCancellationNotAllowed)
	assert.Equal(t, 1, c.CancelCalls())
}

func TestCancelShipment_DeliveredIsRejected(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)
	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	s := h.shipment(t, "ORD-1")
	s.Status = carrier.StatusDelivered
	require.NoError(t, h.store.UpdateShipment(context.Background(), s))

	err = h.orchestrator.CancelShipment(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, shipping.ErrCancellationNotAllowed)
	assert.Zero(t, c.CancelCalls())
	assert.Equal(t, carrier.StatusDelivered, h.shipment(t, "ORD-1").Status)
}

func TestCancelShipment_CarrierRefuses(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	c.OnCancelShipment = func(context.Context, *carrier.CancelRequest) bool { return false }
	h := newHarness(t, c)
	_, err := h.orchestrator.CreateShipment(context.Background(), shipmentRequest("ORD-1"))
	require.NoError(t, err)

	err = h.orchestrator.CancelShipment(context.Background(), "ORD-1")
	var cancelErr *shipping.CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, carrier.TypeShipmozo, cancelErr.Carrier)

	s := h.shipment(t, "ORD-1")
	assert.Equal(t, carrier.StatusPending, s.Status)
	assert.True(t, s.Active)
}

func TestCancelShipment_NotFound(t *testing.T) {
	h := newHarness(t, mock.New(carrier.TypeShipmozo))
	err := h.orchestrator.CancelShipment(context.Background(), "missing")
	assert.ErrorIs(t, err, shipping.ErrShipmentNotFound)
}

func TestShipmentDetails_NotFound(t *testing.T) {
	h := newHarness(t, mock.New(carrier.TypeShipmozo))
	_, err := h.orchestrator.ShipmentDetails(context.Background(), "missing")
	assert.ErrorIs(t, err, shipping.ErrShipmentNotFound)
}

func TestTestServiceability(t *testing.T) {
	serviceable := mock.New(carrier.TypeShipmozo)
	unserviceable := mock.New(carrier.TypeDelhivery)
	unserviceable.OnCheckServiceability = func(context.Context, string, string) bool { return false }
	broken := mock.New(carrier.TypeDTDC)
	broken.OnCheckServiceability = func(context.Context, string, string) bool { panic("bad response") }
	h := newHarness(t, serviceable, unserviceable, broken)

	report, err := h.orchestrator.TestServiceability(context.Background(), "302001", "110001")
	require.NoError(t, err)
	assert.Equal(t, "302001", report.PickupPincode)
	require.Len(t, report.Results, 3)

	assert.Equal(t, carrier.TypeShipmozo, report.Results[0].CarrierType)
	assert.True(t, report.Results[0].Serviceable)
	assert.False(t, report.Results[1].Serviceable)
	assert.Empty(t, report.Results[1].Error)
	assert.False(t, report.Results[2].Serviceable)
	assert.Equal(t, "bad response", report.Results[2].Error)
}

func TestTestServiceability_ReportsBreakerState(t *testing.T) {
	tripped := &breakerCarrier{Client: mock.New(carrier.TypeShipmozo), state: "open"}
	h := newHarness(t, tripped, mock.New(carrier.TypeDelhivery))

	report, err := h.orchestrator.TestServiceability(context.Background(), "302001", "110001")
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "open", report.Results[0].BreakerState)
	assert.Empty(t, report.Results[1].BreakerState)
}

func TestTestServiceability_InvalidPincode(t *testing.T) {
	c := mock.New(carrier.TypeShipmozo)
	h := newHarness(t, c)

	_, err := h.orchestrator.TestServiceability(context.Background(), "3020", "110001")
	assert.ErrorIs(t, err, carrier.ErrInvalidRequest)
	assert.Zero(t, c.ServiceabilityCalls())
}

func TestListWarehouses(t *testing.T) {
	withWarehouses := &warehouseCarrier{
		Client:     mock.New(carrier.TypeShipmozo),
		warehouses: []carrier.Warehouse{{ID: "101", Title: "Jaipur", Pincode: "302001", Default: true, Active: true}},
	}
	failing := &warehouseCarrier{Client: mock.New(carrier.TypeDelhivery), err: errors.New("timeout")}
	h := newHarness(t, withWarehouses, failing, mock.New(carrier.TypeDTDC))

	list, err := h.orchestrator.ListWarehouses(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, carrier.TypeShipmozo, list[0].CarrierType)
	assert.Equal(t, "101", list[0].ID)
}

func TestListWarehouses_AllFail(t *testing.T) {
	failing := &warehouseCarrier{Client: mock.New(carrier.TypeShipmozo), err: errors.New("unauthorized")}
	h := newHarness(t, failing)

	_, err := h.orchestrator.ListWarehouses(context.Background())
	assert.ErrorContains(t, err, "unauthorized")
}
