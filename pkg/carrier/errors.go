package carrier

import (
	"errors"
	"fmt"
)

// Error codes shared by adapters.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeAPIError           = "API_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeWorkflowIncomplete = "WORKFLOW_INCOMPLETE"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
)

// CarrierError represents an error from a courier integration.
type CarrierError struct {
	Carrier    CarrierType
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	// Reference is the vendor-side order reference, when one exists. It is
	// set on workflow errors that leave state behind at the carrier.
	Reference string
	Cause     error
}

// Error implements the error interface.
func (e *CarrierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CarrierError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CarrierError.
func (e *CarrierError) Is(target error) bool {
	t, ok := target.(*CarrierError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewCarrierError creates a new CarrierError.
func NewCarrierError(carrier CarrierType, code, message string) *CarrierError {
	return &CarrierError{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *CarrierError) WithCause(err error) *CarrierError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *CarrierError) WithStatusCode(code int) *CarrierError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *CarrierError) WithRetryable(retryable bool) *CarrierError {
	e.Retryable = retryable
	return e
}

// WithReference records the vendor order reference.
func (e *CarrierError) WithReference(ref string) *CarrierError {
	e.Reference = ref
	return e
}

// Sentinel errors for common shipping scenarios.
var (
	// ErrInvalidRequest indicates malformed pincodes, weights or amounts.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrServiceUnavailable indicates the carrier is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrShipmentNotFound indicates the carrier has no record of the shipment.
	ErrShipmentNotFound = errors.New("shipment not found at carrier")

	// ErrCarrierNotFound indicates the requested carrier is not registered.
	ErrCarrierNotFound = errors.New("carrier not found")

	// ErrRateLimitExceeded indicates the carrier rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrAuthenticationFailed indicates carrier authentication failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrLabelNotAvailable indicates the label is not yet available.
	ErrLabelNotAvailable = errors.New("label not available")

	// ErrRejected indicates a well-formed carrier response that declined the
	// request, such as an unserviceable route. Repeating it gives the same answer.
	ErrRejected = errors.New("rejected by carrier")

	// ErrWorkflowIncomplete matches any CarrierError raised when a booking
	// workflow stopped after the carrier already recorded part of it.
	ErrWorkflowIncomplete = &CarrierError{Code: CodeWorkflowIncomplete}
)

// IsRetryable returns true if the error is worth retrying.
func IsRetryable(err error) bool {
	var carrierErr *CarrierError
	if errors.As(err, &carrierErr) {
		return carrierErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}

// invalidf builds a validation error that wraps ErrInvalidRequest.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
