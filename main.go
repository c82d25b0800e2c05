package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tournevent/courier/internal/server"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "courier",
	Short:   "Courier - multi-carrier shipping orchestration for Indian couriers",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GraphQL server",
	RunE:  runServe,
}

var serviceabilityCmd = &cobra.Command{
	Use:   "serviceability <pickup-pincode> <delivery-pincode>",
	Short: "Ask every enabled carrier whether it serves a route",
	Args:  cobra.ExactArgs(2),
	RunE:  runServiceability,
}

var warehousesCmd = &cobra.Command{
	Use:   "warehouses",
	Short: "List pickup warehouses registered with the carriers",
	Args:  cobra.NoArgs,
	RunE:  runWarehouses,
}

func init() {
	rootCmd.AddCommand(serveCmd, serviceabilityCmd, warehousesCmd)
}

// setup loads configuration and wires the service. The returned cleanup
// flushes telemetry and releases resources.
func setup(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
		tracer, tracerShutdown = nil, func(context.Context) error { return nil }
	}

	a, err := initApp(ctx, cfg, logger, tracer)
	if err != nil {
		tracerShutdown(context.Background())
		logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		a.close()
		tracerShutdown(context.Background())
		logger.Sync()
	}
	return a, cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	a.logger.Info("Starting courier",
		zap.Int("port", a.cfg.Port),
		zap.String("version", a.cfg.Version),
		zap.Int("carriers", a.orchestrator.Registry().Count()),
	)

	srv := server.New(server.Config{Port: a.cfg.Port, Gatherer: a.registry}, a.resolver, a.logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runServiceability(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := a.orchestrator.TestServiceability(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runWarehouses(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	warehouses, err := a.orchestrator.ListWarehouses(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, warehouses)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
