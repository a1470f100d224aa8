// Package main implements the entry point for the sprawl conversion
// engine: the service that runs recipe-based resource conversions across
// converter nodes and streams the resulting events to game clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/deadcoast/sprawl-engine/config"
	"github.com/deadcoast/sprawl-engine/conversion"
	"github.com/deadcoast/sprawl-engine/event"
	"github.com/deadcoast/sprawl-engine/flownet"
	"github.com/deadcoast/sprawl-engine/gateway"
	"github.com/deadcoast/sprawl-engine/metric"
	"github.com/deadcoast/sprawl-engine/registry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "sprawl-engine"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// CLI logging flags take precedence over the config file.
	logLevel, logFormat := cfg.Logging.Level, cfg.Logging.Format
	if cliCfg.LogLevel != "" {
		logLevel = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		logFormat = cliCfg.LogFormat
	}
	logger := setupLogger(logLevel, logFormat)
	slog.SetDefault(logger)

	slog.Info("Starting sprawl engine",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	metricsRegistry := metric.NewMetricsRegistry()

	// Event fan-out: the in-process bus always runs (the gateway feeds off
	// it); NATS publishing joins in when configured.
	bus := event.NewBus(logger)
	sink := event.Sink(bus)
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		defer nc.Close()
		sink = event.Multi(bus, event.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, logger))
		slog.Info("NATS event publishing enabled", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}
	sink = event.Counted(sink, metricsRegistry.CoreMetrics().EventsPublished)

	flow := flownet.NewManager(logger)
	reg := registry.New()
	if err := seedDemoContent(reg, flow); err != nil {
		return fmt.Errorf("seed demo content: %w", err)
	}

	engine := conversion.NewEngine(reg, flow, sink, logger, metricsRegistry,
		conversion.WithTickInterval(cfg.Engine.TickInterval),
		conversion.WithProcessHistory(cfg.Engine.ProcessHistory),
		conversion.WithChainHistory(cfg.Engine.ChainHistory),
	)
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := engine.Start(signalCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	metricsRegistry.CoreMetrics().EngineStatus.WithLabelValues("conversion").Set(2)

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gw = gateway.NewServer(gateway.Config{
			Addr: cfg.Gateway.Addr,
			Path: cfg.Gateway.Path,
		}, bus, logger, metricsRegistry)
		if err := gw.Initialize(); err != nil {
			return fmt.Errorf("initialize gateway: %w", err)
		}
		if err := gw.Start(signalCtx); err != nil {
			return fmt.Errorf("start gateway: %w", err)
		}
		slog.Info("Gateway listening", "addr", gw.Addr(), "path", cfg.Gateway.Path)
	}

	execID, err := engine.StartChain(signalCtx, demoChainID)
	if err != nil {
		slog.Warn("Failed to start demo chain", "chain_id", demoChainID, "error", err)
	} else {
		slog.Info("Demo chain running", "chain_id", demoChainID, "execution_id", execID)
	}

	slog.Info("Sprawl engine started successfully")
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	return shutdown(engine, gw, metricsRegistry, cliCfg.ShutdownTimeout)
}

// shutdown stops the outer surfaces first, then the engine.
func shutdown(
	engine *conversion.Engine,
	gw *gateway.Server,
	metricsRegistry *metric.MetricsRegistry,
	timeout time.Duration,
) error {
	var failed bool

	if gw != nil {
		if err := gw.Stop(timeout); err != nil {
			slog.Error("Error stopping gateway", "error", err)
			failed = true
		}
	}
	if err := engine.Stop(timeout); err != nil {
		slog.Error("Error stopping engine", "error", err)
		failed = true
	}
	metricsRegistry.CoreMetrics().EngineStatus.WithLabelValues("conversion").Set(0)

	if failed {
		return fmt.Errorf("graceful shutdown failed")
	}
	slog.Info("Sprawl engine shutdown complete")
	return nil
}

// loadConfig loads configuration from the given path, or built-in
// defaults when the path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
