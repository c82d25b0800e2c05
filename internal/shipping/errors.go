package shipping

import (
	"errors"
	"fmt"

	"github.com/tournevent/courier/pkg/carrier"
)

var (
	// ErrNoDeliveryOptions is returned when no carrier quoted the route.
	ErrNoDeliveryOptions = errors.New("no delivery options available")

	// ErrNoRates is returned when selection is asked to choose from nothing.
	ErrNoRates = errors.New("no rates to select from")

	// ErrShipmentNotFound is returned when no shipment exists for an order.
	ErrShipmentNotFound = errors.New("shipment not found")

	// ErrShipmentExists is returned when an order was already shipped.
	ErrShipmentExists = errors.New("shipment already exists for order")

	// ErrCancellationNotAllowed is returned for delivered or cancelled shipments.
	ErrCancellationNotAllowed = errors.New("shipment cannot be cancelled")
)

// ShipmentCreationError reports a failed booking at the selected carrier.
// Reference holds the vendor order id when the carrier kept partial state.
type ShipmentCreationError struct {
	OrderID   string
	Carrier   carrier.CarrierType
	Reference string
	Err       error
}

func (e *ShipmentCreationError) Error() string {
	return fmt.Sprintf("creating shipment for order %s with %s: %v", e.OrderID, e.Carrier, e.Err)
}

func (e *ShipmentCreationError) Unwrap() error {
	return e.Err
}

// CancellationError reports a carrier refusing or failing to cancel.
type CancellationError struct {
	OrderID string
	Carrier carrier.CarrierType
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("%s could not cancel shipment for order %s", e.Carrier, e.OrderID)
}
