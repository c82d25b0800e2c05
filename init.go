package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tournevent/courier/internal/config"
	"github.com/tournevent/courier/internal/events"
	"github.com/tournevent/courier/internal/graphql"
	"github.com/tournevent/courier/internal/shipping"
	"github.com/tournevent/courier/internal/store"
	"github.com/tournevent/courier/internal/telemetry"
	"github.com/tournevent/courier/pkg/carrier"
	"github.com/tournevent/courier/pkg/carrier/delhivery"
	"github.com/tournevent/courier/pkg/carrier/shipmozo"
)

// app holds the wired service. close releases the store and publisher.
type app struct {
	cfg          *config.Config
	logger       *otelzap.Logger
	registry     *prometheus.Registry
	orchestrator *shipping.Orchestrator
	resolver     *graphql.Resolver
	closers      []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return otel.Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Attributes()...)
}

func initCarriers(ctx context.Context, cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) (*carrier.Registry, error) {
	retry := carrier.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}

	var carriers []carrier.Carrier
	if cfg.ShipmozoEnabled {
		sm := shipmozo.New(shipmozo.Config{
			BaseURL:    cfg.ShipmozoAPIURL,
			PublicKey:  cfg.ShipmozoPublicKey,
			PrivateKey: cfg.ShipmozoPrivateKey,
			Timeout:    cfg.CarrierTimeout,
			Retry:      retry,
			UseMock:    cfg.ShipmozoUseMock,
		}, logger, tracer)
		// Quotes fall back to the request pincode until a warehouse is known.
		_ = sm.LoadDefaultWarehouse(ctx)
		carriers = append(carriers, sm)
	}

	if cfg.DelhiveryEnabled {
		carriers = append(carriers, delhivery.New(delhivery.Config{
			BaseURL:        cfg.DelhiveryBaseURL,
			Token:          cfg.DelhiveryToken,
			PickupLocation: cfg.DelhiveryPickupLocation,
			Timeout:        cfg.CarrierTimeout,
			Retry:          retry,
			UseMock:        cfg.DelhiveryUseMock,
		}, logger, tracer))
	}

	if len(carriers) == 0 {
		return nil, errors.New("no carriers enabled")
	}
	return carrier.NewRegistry(carriers...)
}

func initStore(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("Using in-memory shipment store")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	logger.Info("Using PostgreSQL shipment store")
	return pg, nil
}

func initPublisher(cfg *config.Config, logger *otelzap.Logger) events.Publisher {
	if !cfg.KafkaEnabled() {
		return events.NopPublisher{}
	}
	logger.Info("Publishing shipment events to Kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
	)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}

func initSelector(cfg *config.Config, logger *otelzap.Logger) (*shipping.Selector, error) {
	prefs := shipping.DefaultRegionalPreferences()
	if cfg.RegionalPreferences != "" {
		parsed, err := shipping.ParseRegionalPreferences(cfg.RegionalPreferences)
		if err != nil {
			return nil, fmt.Errorf("REGIONAL_PREFERENCES: %w", err)
		}
		prefs = parsed
	}
	return shipping.NewSelector(logger, prefs), nil
}

// initApp wires every dependency of the service from cfg.
func initApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	carriers, err := initCarriers(ctx, cfg, logger, tracer)
	if err != nil {
		return nil, err
	}
	selector, err := initSelector(cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	publisher := initPublisher(cfg, logger)
	a.closers = append(a.closers, publisher.Close)

	metrics := telemetry.NewMetrics(a.registry)
	a.orchestrator = shipping.NewOrchestrator(shipping.Deps{
		Registry:  carriers,
		Selector:  selector,
		Store:     st,
		Publisher: publisher,
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   metrics,
	})
	a.resolver = graphql.NewResolver(a.orchestrator, logger, metrics)
	return a, nil
}
