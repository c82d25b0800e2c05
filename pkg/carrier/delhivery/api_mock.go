package delhivery

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetPincode          func(ctx context.Context, pincode string) (*PincodeResponse, error)
	OnGetCharges          func(ctx context.Context, req *ChargesRequest) ([]ChargeData, error)
	OnCreateOrder         func(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	OnCreatePickupRequest func(ctx context.Context, req *PickupRequest) (*PickupResponse, error)
	OnTrackPackage        func(ctx context.Context, waybill string) (*TrackResponse, error)
	OnEditPackage         func(ctx context.Context, req *EditRequest) (*EditResponse, error)
	OnGetPackingSlip      func(ctx context.Context, waybill string) (*PackingSlipResponse, error)

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

// GetPincode reports every pincode as fully serviceable.
func (m *MockAPIClient) GetPincode(ctx context.Context, pincode string) (*PincodeResponse, error) {
	if err := m.begin("pin-codes"); err != nil {
		return nil, err
	}
	if m.OnGetPincode != nil {
		return m.OnGetPincode(ctx, pincode)
	}

	pin, _ := strconv.Atoi(pincode)
	return &PincodeResponse{
		DeliveryCodes: []DeliveryCode{
			{PostalCode: PostalCode{Pin: pin, PrePaid: "Y", COD: "Y", Pickup: "Y"}},
		},
	}, nil
}

// GetCharges returns a mock quote, cheaper for surface.
func (m *MockAPIClient) GetCharges(ctx context.Context, req *ChargesRequest) ([]ChargeData, error) {
	if err := m.begin("charges"); err != nil {
		return nil, err
	}
	if m.OnGetCharges != nil {
		return m.OnGetCharges(ctx, req)
	}

	amount := 95.0
	if req.Mode == ModeExpress {
		amount = 160.0
	}
	return []ChargeData{
		{TotalAmount: amount, GrossAmount: amount / 1.18, ChargedWeight: req.ChargeableGrams, Zone: "D"},
	}, nil
}

// CreateOrder manifests a mock package.
func (m *MockAPIClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if err := m.begin("create"); err != nil {
		return nil, err
	}
	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}

	packages := make([]CreatedPackage, len(req.Shipments))
	for i, s := range req.Shipments {
		packages[i] = CreatedPackage{
			Waybill: fmt.Sprintf("%d", 2000000000000+time.Now().UnixNano()%900000000000),
			Status:  "Success",
			RefNum:  s.Order,
		}
	}
	return &CreateOrderResponse{
		Success:      true,
		PackageCount: len(packages),
		Packages:     packages,
	}, nil
}

// CreatePickupRequest schedules a mock pickup.
func (m *MockAPIClient) CreatePickupRequest(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	if err := m.begin("pickup"); err != nil {
		return nil, err
	}
	if m.OnCreatePickupRequest != nil {
		return m.OnCreatePickupRequest(ctx, req)
	}
	return &PickupResponse{
		PickupID:   int(time.Now().UnixNano() % 1000000),
		PickupDate: req.PickupDate,
		PickupTime: req.PickupTime,
	}, nil
}

// TrackPackage returns mock scans for a manifested package.
func (m *MockAPIClient) TrackPackage(ctx context.Context, waybill string) (*TrackResponse, error) {
	if err := m.begin("track"); err != nil {
		return nil, err
	}
	if m.OnTrackPackage != nil {
		return m.OnTrackPackage(ctx, waybill)
	}

	now := time.Now()
	return &TrackResponse{
		ShipmentData: []ShipmentData{
			{Shipment: TrackedShipment{
				AWB: waybill,
				Status: ShipmentStatus{
					Status:         "Manifested",
					StatusType:     "UD",
					StatusLocation: "Origin Facility",
					StatusDateTime: now.Format("2006-01-02T15:04:05"),
				},
				Scans: []ScanWrapper{
					{ScanDetail: ScanDetail{
						Scan:            "Manifested",
						ScanDateTime:    now.Format("2006-01-02T15:04:05"),
						ScannedLocation: "Origin Facility",
						Instructions:    "Consignment Manifested",
					}},
				},
			}},
		},
	}, nil
}

// EditPackage accepts every edit.
func (m *MockAPIClient) EditPackage(ctx context.Context, req *EditRequest) (*EditResponse, error) {
	if err := m.begin("edit"); err != nil {
		return nil, err
	}
	if m.OnEditPackage != nil {
		return m.OnEditPackage(ctx, req)
	}
	return &EditResponse{Status: true, Remark: "Shipment has been cancelled."}, nil
}

// GetPackingSlip returns a mock label link.
func (m *MockAPIClient) GetPackingSlip(ctx context.Context, waybill string) (*PackingSlipResponse, error) {
	if err := m.begin("packing_slip"); err != nil {
		return nil, err
	}
	if m.OnGetPackingSlip != nil {
		return m.OnGetPackingSlip(ctx, waybill)
	}
	return &PackingSlipResponse{
		PackagesFound: 1,
		Packages: []PackingSlip{
			{Waybill: waybill, PDFDownloadLink: "https://labels.delhivery.mock/" + waybill + ".pdf"},
		},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
