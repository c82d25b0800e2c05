package carrier

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker guarding a carrier API.
type BreakerConfig struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // window after which failure counts reset
	Timeout             time.Duration // time spent open before probing again
	ConsecutiveFailures uint32        // failures that trip the breaker
}

// DefaultBreakerConfig returns the settings used by the carrier HTTP clients.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

var errUpstream = errors.New("upstream server error")

// Breaker wraps vendor HTTP round-trips with a circuit breaker. Transport
// errors and 5xx responses count as failures.
type Breaker struct {
	carrier CarrierType
	cb      *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker for a carrier.
func NewBreaker(carrier CarrierType, cfg BreakerConfig, logger *otelzap.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        string(carrier),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Warn("Carrier circuit breaker state changed",
				zap.String("carrier", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Breaker{
		carrier: carrier,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// Do executes a round-trip through the breaker. A 5xx response is still
// returned to the caller so its body can be parsed.
func (b *Breaker) Do(fn func() (*http.Response, error)) (*http.Response, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstream
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, NewCarrierError(b.carrier, CodeUnavailable, "circuit breaker open").
			WithCause(ErrServiceUnavailable).
			WithRetryable(true)
	case errors.Is(err, errUpstream):
		return out.(*http.Response), nil
	case err != nil:
		return nil, err
	}
	return out.(*http.Response), nil
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
