package shipping

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tournevent/courier/internal/telemetry"
	"github.com/tournevent/courier/pkg/carrier"
)

// Aggregator fans a rate request out to carriers and merges the quotes.
type Aggregator struct {
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
}

// NewAggregator creates an Aggregator. metrics may be nil.
func NewAggregator(logger *otelzap.Logger, metrics *telemetry.Metrics) *Aggregator {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	return &Aggregator{logger: logger, metrics: metrics}
}

// AggregateRates asks every carrier for quotes concurrently and returns them
// sorted by ascending price. A carrier that is not serviceable, fails or
// panics contributes nothing; the others are unaffected. An empty result
// is a normal outcome.
func (a *Aggregator) AggregateRates(ctx context.Context, carriers []carrier.Carrier, req *carrier.RateRequest) []carrier.CarrierRate {
	results := make([][]carrier.CarrierRate, len(carriers))

	// Plain errgroup without WithContext: one carrier failing must not cancel the rest.
	var g errgroup.Group
	for i, c := range carriers {
		g.Go(func() error {
			results[i] = a.RatesFromCarrier(ctx, c, req)
			return nil
		})
	}
	_ = g.Wait()

	var rates []carrier.CarrierRate
	for _, r := range results {
		rates = append(rates, r...)
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].Price < rates[j].Price
	})

	a.logger.Ctx(ctx).Info("Aggregated rates",
		zap.Int("carriers", len(carriers)),
		zap.Int("rates", len(rates)),
		zap.String("pickup", req.PickupPincode),
		zap.String("delivery", req.DeliveryPincode),
	)
	return rates
}

// RatesFromCarrier checks serviceability and then fetches quotes from one
// carrier. Any failure, including a panic inside the adapter, yields nil.
func (a *Aggregator) RatesFromCarrier(ctx context.Context, c carrier.Carrier, req *carrier.RateRequest) (rates []carrier.CarrierRate) {
	start := time.Now()
	name := string(c.Type())
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			a.logger.Ctx(ctx).Error("Carrier panicked while quoting",
				zap.String("carrier", name),
				zap.Any("panic", r),
			)
			a.metrics.RecordError(name, "panic")
			status = "error"
			rates = nil
		}
		a.metrics.RecordRequest("get_rates", name, status, time.Since(start).Seconds())
	}()

	if !c.CheckServiceability(ctx, req.PickupPincode, req.DeliveryPincode) {
		a.logger.Ctx(ctx).Debug("Carrier does not service route",
			zap.String("carrier", name),
			zap.String("pickup", req.PickupPincode),
			zap.String("delivery", req.DeliveryPincode),
		)
		status = "unserviceable"
		return nil
	}

	rates, err := c.GetRates(ctx, req)
	if err != nil {
		a.logger.Ctx(ctx).Warn("Carrier rate request failed",
			zap.String("carrier", name),
			zap.Error(err),
		)
		a.metrics.RecordError(name, errorType(err))
		status = "error"
		return nil
	}
	if len(rates) == 0 {
		status = "empty"
	}
	return rates
}

// Cheapest quotes the route across carriers and returns the lowest priced
// rate. ok is false when no carrier quoted.
func (a *Aggregator) Cheapest(ctx context.Context, carriers []carrier.Carrier, req *carrier.RateRequest) (carrier.CarrierRate, bool) {
	return CheapestRate(a.AggregateRates(ctx, carriers, req))
}

// Fastest quotes the route across carriers and returns the rate with the
// shortest delivery window.
func (a *Aggregator) Fastest(ctx context.Context, carriers []carrier.Carrier, req *carrier.RateRequest) (carrier.CarrierRate, bool) {
	return FastestRate(a.AggregateRates(ctx, carriers, req))
}

// CheapestRate returns the lowest priced rate.
func CheapestRate(rates []carrier.CarrierRate) (carrier.CarrierRate, bool) {
	if len(rates) == 0 {
		return carrier.CarrierRate{}, false
	}
	best := rates[0]
	for _, r := range rates[1:] {
		if r.Price < best.Price {
			best = r
		}
	}
	return best, true
}

// unparsableDays sorts rates without a readable delivery window last.
const unparsableDays = 999

// FastestRate returns the rate with the shortest delivery window midpoint.
func FastestRate(rates []carrier.CarrierRate) (carrier.CarrierRate, bool) {
	if len(rates) == 0 {
		return carrier.CarrierRate{}, false
	}
	best, bestDays := rates[0], deliveryDays(rates[0], unparsableDays)
	for _, r := range rates[1:] {
		if d := deliveryDays(r, unparsableDays); d < bestDays {
			best, bestDays = r, d
		}
	}
	return best, true
}

func deliveryDays(r carrier.CarrierRate, fallback float64) float64 {
	if d, ok := carrier.ParseDeliveryDays(r.EstimatedDeliveryDays); ok {
		return d
	}
	return fallback
}

// errorType classifies err for the carrier_errors metric.
func errorType(err error) string {
	var ce *carrier.CarrierError
	switch {
	case errors.As(err, &ce):
		return strings.ToLower(ce.Code)
	case errors.Is(err, carrier.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, carrier.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, carrier.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
