package carrier

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// RetryPolicy configures retries of idempotent carrier reads.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy makes up to 3 attempts, waiting 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.BaseDelay << uint(attempts)
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Retry runs fn until it succeeds or the policy is exhausted, doubling the
// delay between attempts. The final attempt's error is returned unchanged.
// Errors a repeat cannot change, such as a carrier rejection, end the loop at once.
func Retry[T any](ctx context.Context, p RetryPolicy, logger *otelzap.Logger, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && isPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		if logger == nil {
			return
		}
		logger.Ctx(ctx).Warn("Retrying carrier call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotifyWithData(operation, p.backOff(ctx), notify)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrShipmentNotFound) ||
		errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrRejected)
}
