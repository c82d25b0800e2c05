package shipmozo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tournevent/courier/pkg/carrier"
)

// APIClient defines the Shipmozo API operations used by the adapter.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// CheckServiceability checks whether a pincode pair is covered.
	CheckServiceability(ctx context.Context, req *ServiceabilityRequest) (*ServiceabilityData, error)

	// CalculateRates quotes every courier available for a shipment.
	CalculateRates(ctx context.Context, req *RateCalculatorRequest) ([]RateData, error)

	// PushOrder registers an order with Shipmozo (booking step 1).
	PushOrder(ctx context.Context, req *PushOrderRequest) (*PushOrderData, error)

	// AssignCourier attaches a courier to a pushed order (booking step 2).
	AssignCourier(ctx context.Context, req *AssignCourierRequest) (*AssignCourierData, error)

	// SchedulePickup books a pickup and issues the AWB (booking step 3).
	SchedulePickup(ctx context.Context, req *SchedulePickupRequest) (*SchedulePickupData, error)

	// TrackOrder retrieves scan history for an AWB.
	TrackOrder(ctx context.Context, awbNumber string) (*TrackData, error)

	// CancelOrder cancels an order at Shipmozo.
	CancelOrder(ctx context.Context, req *CancelOrderRequest) error

	// GetOrderLabel returns the labels generated for an AWB.
	GetOrderLabel(ctx context.Context, awbNumber string) ([]LabelData, error)

	// GetWarehouses lists the pickup locations on the account.
	GetWarehouses(ctx context.Context) ([]WarehouseData, error)

	// GetOrderDetail returns an order, including its AWB once issued.
	GetOrderDetail(ctx context.Context, orderID string) (*OrderDetailData, error)
}

// ============================================================================
// API Request/Response Types (match Shipmozo REST API structure)
// ============================================================================

// Envelope wraps every Shipmozo response. Result is "1" on success.
type Envelope[T any] struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// ServiceabilityRequest is the body of POST /pincode-serviceability.
type ServiceabilityRequest struct {
	PickupPincode   int `json:"pickup_pincode"`
	DeliveryPincode int `json:"delivery_pincode"`
}

// ServiceabilityData is the serviceability result.
type ServiceabilityData struct {
	Serviceable bool `json:"serviceable"`
}

// BoxDimensions describes the boxes in a rate request. Shipmozo expects strings.
type BoxDimensions struct {
	NoOfBox string `json:"no_of_box"`
	Length  string `json:"length"`
	Width   string `json:"width"`
	Height  string `json:"height"`
}

// RateCalculatorRequest is the body of POST /rate-calculator.
type RateCalculatorRequest struct {
	OrderID         string          `json:"order_id"`
	PickupPincode   int             `json:"pickup_pincode"`
	DeliveryPincode int             `json:"delivery_pincode"`
	PaymentType     string          `json:"payment_type"`  // PREPAID, COD
	ShipmentType    string          `json:"shipment_type"` // FORWARD
	OrderAmount     float64         `json:"order_amount"`
	TypeOfPackage   string          `json:"type_of_package"` // SPS: standard package size
	RovType         string          `json:"rov_type"`        // ROV_OWNER
	CODAmount       string          `json:"cod_amount"`
	Weight          float64         `json:"weight"` // grams
	Dimensions      []BoxDimensions `json:"dimensions"`
}

// RateData is a single courier quote.
type RateData struct {
	CourierID             int     `json:"courier_id"`
	CourierName           string  `json:"courier_name"`
	CourierService        string  `json:"courier_service"`
	Rate                  float64 `json:"rate"`
	EstimatedDeliveryDays string  `json:"estimated_delivery_days"`
	CODAvailable          *bool   `json:"cod_available,omitempty"`
	AutoPickup            string  `json:"pickups_automatically_scheduled"` // YES, NO
	MinimumWeight         float64 `json:"minimum_weight"`
	MaximumWeight         float64 `json:"maximum_weight"`
}

// ProductDetail is a line item of a pushed order.
type ProductDetail struct {
	Name            string  `json:"name"`
	SKUNumber       string  `json:"sku_number"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	Discount        string  `json:"discount"`
	HSN             string  `json:"hsn"`
	ProductCategory string  `json:"product_category"`
}

// PushOrderRequest is the body of POST /push-order.
type PushOrderRequest struct {
	OrderID   string `json:"order_id"`
	OrderDate string `json:"order_date"`
	OrderType string `json:"order_type"` // ESSENTIALS

	ConsigneeName           string `json:"consignee_name"`
	ConsigneePhone          string `json:"consignee_phone"`
	ConsigneeAlternatePhone string `json:"consignee_alternate_phone,omitempty"`
	ConsigneeEmail          string `json:"consignee_email"`
	ConsigneeAddressLine1   string `json:"consignee_address_line_one"`
	ConsigneeAddressLine2   string `json:"consignee_address_line_two"`
	ConsigneePinCode        int    `json:"consignee_pin_code"`
	ConsigneeCity           string `json:"consignee_city"`
	ConsigneeState          string `json:"consignee_state"`

	ProductDetail []ProductDetail `json:"product_detail"`

	PaymentType string `json:"payment_type"`
	CODAmount   string `json:"cod_amount"`

	Weight float64 `json:"weight"` // grams
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	WarehouseID       string `json:"warehouse_id"`
	GSTEwaybillNumber string `json:"gst_ewaybill_number"`
	GSTINNumber       string `json:"gstin_number"`
}

// PushOrderData is returned by push-order.
type PushOrderData struct {
	Info        string `json:"Info"`
	OrderID     string `json:"order_id"`
	ReferenceID string `json:"reference_id"`
}

// AssignCourierRequest is the body of POST /assign-courier.
type AssignCourierRequest struct {
	OrderID   string `json:"order_id"`
	CourierID int    `json:"courier_id"`
}

// AssignCourierData is returned by assign-courier.
type AssignCourierData struct {
	OrderID     string `json:"order_id"`
	ReferenceID string `json:"reference_id"`
	Courier     string `json:"courier"`
}

// SchedulePickupRequest is the body of POST /schedule-pickup.
type SchedulePickupRequest struct {
	OrderID string `json:"order_id"`
}

// SchedulePickupData is returned by schedule-pickup.
type SchedulePickupData struct {
	OrderID     string `json:"order_id"`
	ReferenceID string `json:"reference_id"`
	Courier     string `json:"courier"`
	AWBNumber   string `json:"awb_number"`
	LRNumber    string `json:"lr_number"`
}

// ScanDetail is a single tracking scan.
type ScanDetail struct {
	Status    string `json:"status"`
	Location  string `json:"location"`
	Timestamp string `json:"timestamp"`
	Remarks   string `json:"remarks,omitempty"`
}

// TrackData is returned by track-order.
type TrackData struct {
	OrderID              string       `json:"order_id"`
	ReferenceID          string       `json:"reference_id"`
	AWBNumber            string       `json:"awb_number"`
	Courier              string       `json:"courier"`
	ExpectedDeliveryDate string       `json:"expected_delivery_date"`
	CurrentStatus        string       `json:"current_status"`
	StatusTime           string       `json:"status_time"`
	ScanDetail           []ScanDetail `json:"scan_detail"`
}

// CancelOrderRequest is the body of POST /cancel-order.
type CancelOrderRequest struct {
	OrderID   string `json:"order_id"`
	AWBNumber string `json:"awb_number"`
}

// LabelData is a generated label. Label holds a base64 encoded PNG.
type LabelData struct {
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
}

// WarehouseData is a pickup location.
type WarehouseData struct {
	ID           int    `json:"id"`
	Default      string `json:"default"` // YES, NO
	AddressTitle string `json:"address_title"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Pincode      string `json:"pincode"`
	City         string `json:"city"`
	State        string `json:"state"`
	Status       string `json:"status"` // ACTIVE, INACTIVE
}

// OrderDetailData is returned by get-order-detail.
type OrderDetailData struct {
	OrderID     string `json:"order_id"`
	ReferenceID string `json:"reference_id"`
	AWBNumber   string `json:"awb_number"`
	Courier     string `json:"courier"`
	Status      string `json:"status"`
}

// CodeRejected marks a well-formed response whose result was "0".
const CodeRejected = "REJECTED"

// APIError represents an error from the Shipmozo API.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap maps HTTP failures onto the shared carrier sentinels so retry and
// error classification work across adapters.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == CodeRejected:
		return carrier.ErrRejected
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return carrier.ErrAuthenticationFailed
	case e.StatusCode == http.StatusTooManyRequests:
		return carrier.ErrRateLimitExceeded
	case e.StatusCode >= http.StatusInternalServerError:
		return carrier.ErrServiceUnavailable
	default:
		return nil
	}
}

func rejected(message string) *APIError {
	return &APIError{Code: CodeRejected, Message: message}
}

func httpError(status int, message string) *APIError {
	return &APIError{
		Code:       fmt.Sprintf("HTTP_%d", status),
		Message:    message,
		StatusCode: status,
	}
}
