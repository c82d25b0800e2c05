// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Shipmozo
	ShipmozoEnabled    bool   `envconfig:"SHIPMOZO_ENABLED" default:"true"`
	ShipmozoUseMock    bool   `envconfig:"SHIPMOZO_USE_MOCK" default:"false"`
	ShipmozoAPIURL     string `envconfig:"SHIPMOZO_API_URL" default:"https://shipping-api.com/app/api/v1"`
	ShipmozoPublicKey  string `envconfig:"SHIPMOZO_PUBLIC_KEY"`
	ShipmozoPrivateKey string `envconfig:"SHIPMOZO_PRIVATE_KEY"`

	// Delhivery
	DelhiveryEnabled        bool   `envconfig:"DELHIVERY_ENABLED" default:"false"`
	DelhiveryUseMock        bool   `envconfig:"DELHIVERY_USE_MOCK" default:"false"`
	DelhiveryBaseURL        string `envconfig:"DELHIVERY_BASE_URL" default:"https://track.delhivery.com"`
	DelhiveryToken          string `envconfig:"DELHIVERY_TOKEN"`
	DelhiveryPickupLocation string `envconfig:"DELHIVERY_PICKUP_LOCATION"`

	// Carrier calls
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	CarrierTimeout   time.Duration `envconfig:"CARRIER_TIMEOUT" default:"30s"`

	// Selection rules as "prefix,prefix:carrier:priority;...". Empty keeps the built-in rules.
	RegionalPreferences string `envconfig:"REGIONAL_PREFERENCES"`

	// Persistence and events. Empty values select the in-memory store and
	// the no-op publisher.
	DatabaseURL  string   `envconfig:"DATABASE_URL"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"shipping.events"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"courier"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must not be negative")
	}
	if c.CarrierTimeout <= 0 {
		return fmt.Errorf("CARRIER_TIMEOUT must be positive")
	}
	if c.DelhiveryEnabled && !c.DelhiveryUseMock && c.DelhiveryPickupLocation == "" {
		return fmt.Errorf("DELHIVERY_PICKUP_LOCATION is required when Delhivery is enabled")
	}
	return nil
}

// KafkaEnabled reports whether lifecycle events go to Kafka.
func (c *Config) KafkaEnabled() bool {
	for _, b := range c.KafkaBrokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("shipmozo.enabled", c.ShipmozoEnabled),
		attribute.Bool("shipmozo.mock", c.ShipmozoUseMock),
		attribute.Bool("delhivery.enabled", c.DelhiveryEnabled),
		attribute.Bool("delhivery.mock", c.DelhiveryUseMock),
		attribute.Bool("store.postgres", c.DatabaseURL != ""),
		attribute.Bool("events.kafka", c.KafkaEnabled()),
	}
}
