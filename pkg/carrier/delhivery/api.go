package delhivery

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tournevent/courier/pkg/carrier"
)

// APIClient defines the Delhivery API operations used by the adapter.
type APIClient interface {
	// GetPincode returns serviceability details for a single pincode.
	GetPincode(ctx context.Context, pincode string) (*PincodeResponse, error)

	// GetCharges quotes a shipment for one transport mode.
	GetCharges(ctx context.Context, req *ChargesRequest) ([]ChargeData, error)

	// CreateOrder manifests a shipment and allocates a waybill.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)

	// CreatePickupRequest asks Delhivery to collect from a pickup location.
	CreatePickupRequest(ctx context.Context, req *PickupRequest) (*PickupResponse, error)

	// TrackPackage returns scan history for a waybill.
	TrackPackage(ctx context.Context, waybill string) (*TrackResponse, error)

	// EditPackage edits or cancels a manifested package.
	EditPackage(ctx context.Context, req *EditRequest) (*EditResponse, error)

	// GetPackingSlip returns the label for a waybill.
	GetPackingSlip(ctx context.Context, waybill string) (*PackingSlipResponse, error)
}

// ============================================================================
// API Request/Response Types (match Delhivery B2C API structure)
// ============================================================================

// Transport modes accepted by the charges API.
const (
	ModeExpress = "E"
	ModeSurface = "S"
)

// PincodeResponse is returned by GET /c/api/pin-codes/json/.
type PincodeResponse struct {
	DeliveryCodes []DeliveryCode `json:"delivery_codes"`
}

// DeliveryCode wraps a pincode record.
type DeliveryCode struct {
	PostalCode PostalCode `json:"postal_code"`
}

// PostalCode describes what Delhivery offers at a pincode. Flags are "Y" or "N".
type PostalCode struct {
	Pin       int    `json:"pin"`
	District  string `json:"district"`
	StateCode string `json:"state_code"`
	PrePaid   string `json:"pre_paid"`
	COD       string `json:"cod"`
	Pickup    string `json:"pickup"`
	Remarks   string `json:"remarks"`
}

// ChargesRequest holds the query of GET /api/kinko/v1/invoice/charges/.json.
type ChargesRequest struct {
	Mode            string  // md: E or S
	OriginPin       string  // o_pin
	DestinationPin  string  // d_pin
	ChargeableGrams float64 // cgm
	PaymentType     string  // pt: Pre-paid or COD
	CODAmount       float64 // cod
}

// ChargeData is a priced quote.
type ChargeData struct {
	TotalAmount   float64 `json:"total_amount"`
	GrossAmount   float64 `json:"gross_amount"`
	ChargedWeight float64 `json:"charged_weight"`
	Zone          string  `json:"zone"`
	Status        string  `json:"status"`
}

// OrderShipment is a single shipment inside a create request.
type OrderShipment struct {
	Name           string  `json:"name"`
	Add            string  `json:"add"`
	Pin            string  `json:"pin"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	Country        string  `json:"country"`
	Phone          string  `json:"phone"`
	Order          string  `json:"order"`
	PaymentMode    string  `json:"payment_mode"` // Prepaid, COD
	CODAmount      float64 `json:"cod_amount"`
	TotalAmount    float64 `json:"total_amount"`
	ProductsDesc   string  `json:"products_desc"`
	Quantity       string  `json:"quantity"`
	OrderDate      string  `json:"order_date"`
	Weight         float64 `json:"weight"` // grams
	ShipmentLength float64 `json:"shipment_length"`
	ShipmentWidth  float64 `json:"shipment_width"`
	ShipmentHeight float64 `json:"shipment_height"`
	ShippingMode   string  `json:"shipping_mode"` // Express, Surface
}

// PickupLocation names a registered warehouse.
type PickupLocation struct {
	Name string `json:"name"`
}

// CreateOrderRequest is the data payload of POST /api/cmu/create.json.
type CreateOrderRequest struct {
	Shipments      []OrderShipment `json:"shipments"`
	PickupLocation PickupLocation  `json:"pickup_location"`
}

// CreatedPackage is a manifested package.
type CreatedPackage struct {
	Waybill string   `json:"waybill"`
	Status  string   `json:"status"`
	RefNum  string   `json:"refnum"`
	Remarks []string `json:"remarks"`
}

// CreateOrderResponse is returned by create.json.
type CreateOrderResponse struct {
	Success      bool             `json:"success"`
	Remark       string           `json:"rmk"`
	UploadWBN    string           `json:"upload_wbn"`
	PackageCount int              `json:"package_count"`
	Packages     []CreatedPackage `json:"packages"`
}

// PickupRequest is the body of POST /fm/request/new/.
type PickupRequest struct {
	PickupTime           string `json:"pickup_time"` // HH:MM:SS
	PickupDate           string `json:"pickup_date"` // YYYY-MM-DD
	PickupLocation       string `json:"pickup_location"`
	ExpectedPackageCount int    `json:"expected_package_count"`
}

// PickupResponse is returned by the pickup request API.
type PickupResponse struct {
	PickupID     int    `json:"pickup_id"`
	PickupDate   string `json:"pickup_date"`
	PickupTime   string `json:"pickup_time"`
	AlreadyExist bool   `json:"pr_exist"`
	Error        string `json:"error,omitempty"`
}

// TrackResponse is returned by GET /api/v1/packages/json/.
type TrackResponse struct {
	ShipmentData []ShipmentData `json:"ShipmentData"`
	Error        string         `json:"Error,omitempty"`
}

// ShipmentData wraps a tracked shipment.
type ShipmentData struct {
	Shipment TrackedShipment `json:"Shipment"`
}

// TrackedShipment is a shipment's tracking record.
type TrackedShipment struct {
	AWB                  string         `json:"AWB"`
	ReferenceNo          string         `json:"ReferenceNo"`
	Status               ShipmentStatus `json:"Status"`
	ExpectedDeliveryDate string         `json:"ExpectedDeliveryDate"`
	Scans                []ScanWrapper  `json:"Scans"`
}

// ShipmentStatus is the latest status of a shipment.
type ShipmentStatus struct {
	Status         string `json:"Status"`
	StatusType     string `json:"StatusType"`
	StatusLocation string `json:"StatusLocation"`
	StatusDateTime string `json:"StatusDateTime"`
	Instructions   string `json:"Instructions"`
}

// ScanWrapper wraps a scan.
type ScanWrapper struct {
	ScanDetail ScanDetail `json:"ScanDetail"`
}

// ScanDetail is a single scan.
type ScanDetail struct {
	Scan            string `json:"Scan"`
	ScanDateTime    string `json:"ScanDateTime"`
	ScannedLocation string `json:"ScannedLocation"`
	Instructions    string `json:"Instructions"`
}

// EditRequest is the body of POST /api/p/edit.
type EditRequest struct {
	Waybill      string `json:"waybill"`
	Cancellation string `json:"cancellation,omitempty"` // "true" to cancel
}

// EditResponse is returned by the edit API.
type EditResponse struct {
	Status bool   `json:"status"`
	Remark string `json:"remark"`
	Error  string `json:"error,omitempty"`
}

// PackingSlip is a label entry.
type PackingSlip struct {
	Waybill         string `json:"wbn"`
	PDFDownloadLink string `json:"pdf_download_link"`
}

// PackingSlipResponse is returned by GET /api/p/packing_slip.
type PackingSlipResponse struct {
	PackagesFound int           `json:"packages_found"`
	Packages      []PackingSlip `json:"packages"`
}

// APIError represents an error from the Delhivery API.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap maps HTTP failures onto the shared carrier sentinels.
func (e *APIError) Unwrap() error {
	switch {
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

func httpError(status int, message string) *APIError {
	return &APIError{
		Code:       fmt.Sprintf("HTTP_%d", status),
		Message:    message,
		StatusCode: status,
	}
}
