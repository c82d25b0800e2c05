package carrier

import (
	"time"
)

// CarrierType identifies a courier integration.
type CarrierType string

const (
	TypeShipmozo  CarrierType = "shipmozo"
	TypeDelhivery CarrierType = "delhivery"
	TypeDTDC      CarrierType = "dtdc"
	TypePushpak   CarrierType = "pushpak"
)

// Valid reports whether t is a known carrier type.
func (t CarrierType) Valid() bool {
	switch t {
	case TypeShipmozo, TypeDelhivery, TypeDTDC, TypePushpak:
		return true
	default:
		return false
	}
}

// PaymentType represents how the consignee pays for the order.
type PaymentType string

const (
	PaymentPrepaid PaymentType = "PREPAID"
	PaymentCOD     PaymentType = "COD"
)

// Dimensions represents box dimensions in centimetres.
type Dimensions struct {
	Length float64 `json:"length" validate:"gt=0,lte=200"`
	Width  float64 `json:"width" validate:"gt=0,lte=200"`
	Height float64 `json:"height" validate:"gt=0,lte=200"`
}

// defaultDimensions is used when a request carries no box size.
var defaultDimensions = Dimensions{Length: 10, Width: 10, Height: 10}

// BoxOrDefault returns d, or a 10x10x10 cm box when d is nil.
func (d *Dimensions) BoxOrDefault() Dimensions {
	if d == nil {
		return defaultDimensions
	}
	return *d
}

// RateRequest is the request for rate quotes.
type RateRequest struct {
	PickupPincode   string      `json:"pickupPincode" validate:"pincode"`
	DeliveryPincode string      `json:"deliveryPincode" validate:"pincode"`
	Weight          float64     `json:"weight" validate:"gt=0,lte=50000"` // grams
	Dimensions      *Dimensions `json:"dimensions,omitempty" validate:"omitempty"`
	PaymentType     PaymentType `json:"paymentType" validate:"oneof=PREPAID COD"`
	OrderAmount     float64     `json:"orderAmount" validate:"gt=0"`
	CODAmount       *float64    `json:"codAmount,omitempty"`
}

// CODValue returns the amount to collect on delivery, falling back to the
// order amount when no explicit COD amount was given.
func (r *RateRequest) CODValue() float64 {
	if r.CODAmount != nil {
		return *r.CODAmount
	}
	return r.OrderAmount
}

// CarrierRate is a single quote produced by a carrier.
type CarrierRate struct {
	CarrierType           CarrierType    `json:"carrierType"`
	CarrierID             string         `json:"carrierId"`
	CarrierName           string         `json:"carrierName"`
	ServiceName           string         `json:"serviceName"`
	Price                 float64        `json:"price"`
	EstimatedDeliveryDays string         `json:"estimatedDeliveryDays"`
	CODAvailable          bool           `json:"codAvailable"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// Customer holds consignee contact and address details.
type Customer struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Address1 string `json:"address1" validate:"required"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state" validate:"required"`
}

// LineItem is a product in the shipment.
type LineItem struct {
	Name     string  `json:"name" validate:"required"`
	SKU      string  `json:"sku" validate:"required"`
	Quantity int     `json:"quantity" validate:"gte=1"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// ShipmentRequest is the request for booking a shipment.
type ShipmentRequest struct {
	RateRequest
	OrderID     string     `json:"orderId" validate:"required"`
	OrderDate   string     `json:"orderDate" validate:"required"`
	Customer    Customer   `json:"customer"`
	Items       []LineItem `json:"items" validate:"required,min=1,dive"`
	WarehouseID string     `json:"warehouseId,omitempty"`

	// SelectedRate is the quote chosen by carrier selection. Adapters that
	// front several couriers book this exact service when it is set.
	SelectedRate *CarrierRate `json:"-" validate:"-"`
}

// ShipmentResponse is the result of a completed booking workflow.
type ShipmentResponse struct {
	Success        bool   `json:"success"`
	TrackingNumber string `json:"trackingNumber"`
	// TrackingPending is set when the carrier accepted the shipment but has
	// not issued a tracking number yet.
	TrackingPending   bool           `json:"trackingPending"`
	CarrierReference  string         `json:"carrierReference"`
	CarrierID         string         `json:"carrierId"`
	CarrierName       string         `json:"carrierName"`
	EstimatedDelivery string         `json:"estimatedDelivery,omitempty"`
	LabelURL          string         `json:"labelUrl,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// TrackingEvent is a single scan reported by a carrier.
type TrackingEvent struct {
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Remarks   string    `json:"remarks,omitempty"`
}

// TrackingStatus is the normalized tracking state of a shipment.
type TrackingStatus struct {
	TrackingNumber   string          `json:"trackingNumber"`
	CurrentStatus    string          `json:"currentStatus"`
	StatusCode       Status          `json:"statusCode"`
	ExpectedDelivery string          `json:"expectedDelivery,omitempty"`
	Location         string          `json:"location,omitempty"`
	LastUpdated      time.Time       `json:"lastUpdated"`
	Events           []TrackingEvent `json:"events"` // newest first
}

// CancelRequest identifies a shipment to cancel at the carrier.
type CancelRequest struct {
	OrderID          string
	TrackingNumber   string
	CarrierReference string
}

// Warehouse is a pickup location registered with a carrier.
type Warehouse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Pincode string `json:"pincode"`
	City    string `json:"city"`
	State   string `json:"state"`
	Default bool   `json:"default"`
	Active  bool   `json:"active"`
}
