package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tournevent/courier/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.ShipmozoEnabled)
	assert.False(t, cfg.DelhiveryEnabled)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.CarrierTimeout)
	assert.Equal(t, "shipping.events", cfg.KafkaTopic)
	assert.False(t, cfg.KafkaEnabled())
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SHIPMOZO_USE_MOCK", "true")
	t.Setenv("DELHIVERY_ENABLED", "true")
	t.Setenv("DELHIVERY_PICKUP_LOCATION", "Jaipur WH")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REGIONAL_PREFERENCES", "30:pushpak:1")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.ShipmozoUseMock)
	assert.True(t, cfg.DelhiveryEnabled)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "30:pushpak:1", cfg.RegionalPreferences)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "0"}},
		{"no attempts", map[string]string{"RETRY_MAX_ATTEMPTS": "0"}},
		{"zero timeout", map[string]string{"CARRIER_TIMEOUT": "0s"}},
		{"unparsable duration", map[string]string{"RETRY_BASE_DELAY": "soon"}},
		{"delhivery without pickup location", map[string]string{"DELHIVERY_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestAttributes(t *testing.T) {
	cfg := &config.Config{ServiceName: "courier", Version: "1.2.3", ShipmozoEnabled: true, DatabaseURL: "postgres://db"}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range cfg.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "courier", attrs["service.name"].AsString())
	assert.Equal(t, "1.2.3", attrs["service.version"].AsString())
	assert.True(t, attrs["shipmozo.enabled"].AsBool())
	assert.True(t, attrs["store.postgres"].AsBool())
	assert.False(t, attrs["events.kafka"].AsBool())
}
