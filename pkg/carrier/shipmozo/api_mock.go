package shipmozo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCheckServiceability func(ctx context.Context, req *ServiceabilityRequest) (*ServiceabilityData, error)
	OnCalculateRates      func(ctx context.Context, req *RateCalculatorRequest) ([]RateData, error)
	OnPushOrder           func(ctx context.Context, req *PushOrderRequest) (*PushOrderData, error)
	OnAssignCourier       func(ctx context.Context, req *AssignCourierRequest) (*AssignCourierData, error)
	OnSchedulePickup      func(ctx context.Context, req *SchedulePickupRequest) (*SchedulePickupData, error)
	OnTrackOrder          func(ctx context.Context, awbNumber string) (*TrackData, error)
	OnCancelOrder         func(ctx context.Context, req *CancelOrderRequest) error
	OnGetOrderLabel       func(ctx context.Context, awbNumber string) ([]LabelData, error)
	OnGetWarehouses       func(ctx context.Context) ([]WarehouseData, error)
	OnGetOrderDetail      func(ctx context.Context, orderID string) (*OrderDetailData, error)

	mu    sync.Mutex
	calls []string
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// Calls returns the API operations invoked so far, in order.
func (m *MockAPIClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockAPIClient) begin(op string) error {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()

	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	return nil
}

// CheckServiceability reports every pincode pair as serviceable.
func (m *MockAPIClient) CheckServiceability(ctx context.Context, req *ServiceabilityRequest) (*ServiceabilityData, error) {
	if err := m.begin("pincode-serviceability"); err != nil {
		return nil, err
	}
	if m.OnCheckServiceability != nil {
		return m.OnCheckServiceability(ctx, req)
	}
	return &ServiceabilityData{Serviceable: true}, nil
}

// CalculateRates returns mock courier quotes.
func (m *MockAPIClient) CalculateRates(ctx context.Context, req *RateCalculatorRequest) ([]RateData, error) {
	if err := m.begin("rate-calculator"); err != nil {
		return nil, err
	}
	if m.OnCalculateRates != nil {
		return m.OnCalculateRates(ctx, req)
	}

	yes := true
	return []RateData{
		{
			CourierID:             12,
			CourierName:           "Xpressbees Surface",
			CourierService:        "Surface",
			Rate:                  72.5,
			EstimatedDeliveryDays: "4-6 days",
			CODAvailable:          &yes,
			AutoPickup:            "NO",
			MinimumWeight:         0,
			MaximumWeight:         5000,
		},
		{
			CourierID:             7,
			CourierName:           "Bluedart Air",
			CourierService:        "Air",
			Rate:                  138,
			EstimatedDeliveryDays: "1-2 days",
			CODAvailable:          &yes,
			AutoPickup:            "NO",
			MinimumWeight:         0,
			MaximumWeight:         10000,
		},
	}, nil
}

// PushOrder registers a mock order.
func (m *MockAPIClient) PushOrder(ctx context.Context, req *PushOrderRequest) (*PushOrderData, error) {
	if err := m.begin("push-order"); err != nil {
		return nil, err
	}
	if m.OnPushOrder != nil {
		return m.OnPushOrder(ctx, req)
	}
	return &PushOrderData{
		Info:        "Order pushed successfully",
		OrderID:     req.OrderID,
		ReferenceID: "SM-" + uuid.New().String()[:8],
	}, nil
}

// AssignCourier assigns a mock courier.
func (m *MockAPIClient) AssignCourier(ctx context.Context, req *AssignCourierRequest) (*AssignCourierData, error) {
	if err := m.begin("assign-courier"); err != nil {
		return nil, err
	}
	if m.OnAssignCourier != nil {
		return m.OnAssignCourier(ctx, req)
	}
	return &AssignCourierData{
		OrderID: req.OrderID,
		Courier: fmt.Sprintf("Courier %d", req.CourierID),
	}, nil
}

// SchedulePickup schedules a mock pickup and issues an AWB.
func (m *MockAPIClient) SchedulePickup(ctx context.Context, req *SchedulePickupRequest) (*SchedulePickupData, error) {
	if err := m.begin("schedule-pickup"); err != nil {
		return nil, err
	}
	if m.OnSchedulePickup != nil {
		return m.OnSchedulePickup(ctx, req)
	}
	return &SchedulePickupData{
		OrderID:   req.OrderID,
		AWBNumber: fmt.Sprintf("%d", 140000000000+time.Now().UnixNano()%90000000000),
	}, nil
}

// TrackOrder returns mock scan history.
func (m *MockAPIClient) TrackOrder(ctx context.Context, awbNumber string) (*TrackData, error) {
	if err := m.begin("track-order"); err != nil {
		return nil, err
	}
	if m.OnTrackOrder != nil {
		return m.OnTrackOrder(ctx, awbNumber)
	}

	now := time.Now()
	return &TrackData{
		AWBNumber:     awbNumber,
		CurrentStatus: "In Transit",
		StatusTime:    now.Add(-2 * time.Hour).Format(time.RFC3339),
		ScanDetail: []ScanDetail{
			{
				Status:    "Picked Up",
				Location:  "Jaipur Hub",
				Timestamp: now.Add(-26 * time.Hour).Format(time.RFC3339),
			},
			{
				Status:    "In Transit",
				Location:  "Delhi Gateway",
				Timestamp: now.Add(-2 * time.Hour).Format(time.RFC3339),
			},
		},
	}, nil
}

// CancelOrder cancels a mock order.
func (m *MockAPIClient) CancelOrder(ctx context.Context, req *CancelOrderRequest) error {
	if err := m.begin("cancel-order"); err != nil {
		return err
	}
	if m.OnCancelOrder != nil {
		return m.OnCancelOrder(ctx, req)
	}
	return nil
}

// GetOrderLabel returns a mock label.
func (m *MockAPIClient) GetOrderLabel(ctx context.Context, awbNumber string) ([]LabelData, error) {
	if err := m.begin("get-order-label"); err != nil {
		return nil, err
	}
	if m.OnGetOrderLabel != nil {
		return m.OnGetOrderLabel(ctx, awbNumber)
	}
	return []LabelData{
		{Label: "iVBORw0KGgo=", CreatedAt: time.Now().Format("2006-01-02 15:04:05")},
	}, nil
}

// GetWarehouses returns mock pickup locations.
func (m *MockAPIClient) GetWarehouses(ctx context.Context) ([]WarehouseData, error) {
	if err := m.begin("get-warehouses"); err != nil {
		return nil, err
	}
	if m.OnGetWarehouses != nil {
		return m.OnGetWarehouses(ctx)
	}
	return []WarehouseData{
		{
			ID:           101,
			Default:      "YES",
			AddressTitle: "Main Warehouse",
			Name:         "Dispatch Desk",
			Phone:        "9000000001",
			Pincode:      "302001",
			City:         "Jaipur",
			State:        "Rajasthan",
			Status:       "ACTIVE",
		},
	}, nil
}

// GetOrderDetail returns a mock order that already has an AWB.
func (m *MockAPIClient) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetailData, error) {
	if err := m.begin("get-order-detail"); err != nil {
		return nil, err
	}
	if m.OnGetOrderDetail != nil {
		return m.OnGetOrderDetail(ctx, orderID)
	}
	return &OrderDetailData{
		OrderID:   orderID,
		AWBNumber: "AWB-" + orderID,
		Status:    "Pickup Scheduled",
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
