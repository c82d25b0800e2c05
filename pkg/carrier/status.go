package carrier

import (
	"strings"
)

// Status represents the normalized status of a shipment.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
	StatusReturned       Status = "RETURNED"
	StatusFailed         Status = "FAILED"
	StatusUnknown        Status = "UNKNOWN"
)

// baseStatusMap covers vocabulary shared by most Indian couriers. Keys are
// normalized with statusKey.
var baseStatusMap = map[string]Status{
	// Pending
	"pending":         StatusPending,
	"pickup_pending":  StatusPending,
	"order_placed":    StatusPending,
	"awaiting_pickup": StatusPending,

	// In transit
	"in_transit": StatusInTransit,
	"shipped":    StatusInTransit,
	"picked_up":  StatusInTransit,
	"dispatched": StatusInTransit,
	"in_hub":     StatusInTransit,

	// Out for delivery
	"out_for_delivery": StatusOutForDelivery,
	"out_of_delivery":  StatusOutForDelivery,

	// Delivered
	"delivered": StatusDelivered,
	"completed": StatusDelivered,

	// Exceptions
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
	"rto":         StatusReturned,
	"returned":    StatusReturned,
	"failed":      StatusFailed,
	"undelivered": StatusFailed,

	"unknown": StatusUnknown,
}

// statusKey lower-cases s and collapses whitespace and hyphen runs into "_".
func statusKey(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}

// NormalizeStatus maps a vendor status string to a canonical Status.
// Entries in extra take precedence over the shared vocabulary; extra keys
// must already be in normalized form. Unrecognized strings map to StatusUnknown.
func NormalizeStatus(raw string, extra map[string]Status) Status {
	key := statusKey(raw)
	if s, ok := extra[key]; ok {
		return s
	}
	if s, ok := baseStatusMap[key]; ok {
		return s
	}
	return StatusUnknown
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// progress ranks the forward delivery chain.
var progress = map[Status]int{
	StatusPending:        0,
	StatusInTransit:      1,
	StatusOutForDelivery: 2,
	StatusDelivered:      3,
}

// CanTransition reports whether a shipment in status from may move to to.
//
// The forward chain is PENDING -> IN_TRANSIT -> OUT_FOR_DELIVERY -> DELIVERED.
// CANCELLED, RETURNED and FAILED are reachable from any non-terminal status.
// Nothing leaves DELIVERED or CANCELLED, UNKNOWN never replaces a known
// status, and a shipment never goes back to PENDING.
func CanTransition(from, to Status) bool {
	if from == to || from.Terminal() || to == StatusUnknown {
		return false
	}
	if from == StatusUnknown {
		return true
	}
	switch to {
	case StatusCancelled, StatusReturned, StatusFailed:
		return true
	case StatusPending:
		return false
	}
	// FAILED and RETURNED shipments may be re-attempted by the carrier.
	fromRank, ok := progress[from]
	if !ok {
		return true
	}
	return progress[to] > fromRank
}

// Label returns the customer facing text for s.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Order Confirmed"
	case StatusInTransit:
		return "On the Way"
	case StatusOutForDelivery:
		return "Out for Delivery"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	case StatusReturned:
		return "Returned"
	case StatusFailed:
		return "Delivery Failed"
	default:
		return "Processing"
	}
}
