package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tournevent/courier/internal/telemetry"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, telemetry.ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, telemetry.ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, telemetry.ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, telemetry.ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, telemetry.ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	logger, err := telemetry.NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.RecordRequest("get_rates", "shipmozo", "success", 0.2)
	m.RecordRequest("get_rates", "shipmozo", "success", 0.1)
	m.RecordError("delhivery", "timeout")
	m.RecordTransition("shipmozo", "IN_TRANSIT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("get_rates", "shipmozo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CarrierErrors.WithLabelValues("delhivery", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShipmentsByStatus.WithLabelValues("shipmozo", "IN_TRANSIT")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("op", "c", "s", 1)
		m.RecordError("c", "e")
		m.RecordTransition("c", "s")
	})
}
