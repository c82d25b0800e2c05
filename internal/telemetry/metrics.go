package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	CarrierErrors     *prometheus.CounterVec
	ShipmentsByStatus *prometheus.CounterVec
}

// NewMetrics creates the service metrics and registers them with reg.
// A nil reg leaves the metrics unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_requests_total",
				Help: "Total number of carrier requests by operation, carrier, and status",
			},
			[]string{"operation", "carrier", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courier_request_duration_seconds",
				Help:    "Carrier request duration in seconds by operation and carrier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "carrier"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_carrier_errors_total",
				Help: "Total carrier errors by carrier and error type",
			},
			[]string{"carrier", "error_type"},
		),
		ShipmentsByStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_shipment_transitions_total",
				Help: "Shipment status transitions by carrier and new status",
			},
			[]string{"carrier", "status"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, carrier, status string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, carrier, status).Inc()
	m.RequestDuration.WithLabelValues(operation, carrier).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, errorType string) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(carrier, errorType).Inc()
}

// RecordTransition counts a shipment moving to status.
func (m *Metrics) RecordTransition(carrier, status string) {
	if m == nil {
		return
	}
	m.ShipmentsByStatus.WithLabelValues(carrier, status).Inc()
}
