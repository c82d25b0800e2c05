package carrier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
			return pincodePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidPincode reports whether s is a 6 digit postal code.
func ValidPincode(s string) bool {
	return pincodePattern.MatchString(s)
}

// ValidateRateRequest checks a rate request before any carrier is contacted.
func ValidateRateRequest(req *RateRequest) error {
	if req == nil {
		return invalidf("request is required")
	}
	if err := requestValidator().Struct(req); err != nil {
		return translateValidation(err)
	}
	return validateCOD(req)
}

// ValidateShipmentRequest checks a booking request before any carrier is contacted.
func ValidateShipmentRequest(req *ShipmentRequest) error {
	if req == nil {
		return invalidf("request is required")
	}
	if err := requestValidator().Struct(req); err != nil {
		return translateValidation(err)
	}
	return validateCOD(&req.RateRequest)
}

func validateCOD(req *RateRequest) error {
	if req.PaymentType == PaymentCOD && (req.CODAmount == nil || *req.CODAmount <= 0) {
		return invalidf("COD amount is required for COD orders")
	}
	return nil
}

// translateValidation turns validator output into a single ErrInvalidRequest.
func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return invalidf("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "pincode":
		return fmt.Sprintf("%s must be 6 digits", name)
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", name)
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
