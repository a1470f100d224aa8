// Package config defines the sprawl engine's configuration: scheduler
// timing, history retention, the UI gateway and optional NATS event
// publishing. Configuration is loaded from YAML and validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deadcoast/sprawl-engine/errors"
)

// Config is the root configuration document.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Gateway GatewayConfig `yaml:"gateway"`
	NATS    NATSConfig    `yaml:"nats"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig tunes the conversion engine.
type EngineConfig struct {
	// TickInterval is the scheduler sweep period.
	TickInterval time.Duration `yaml:"tick_interval"`
	// ProcessHistory bounds the completed-process buffer.
	ProcessHistory int `yaml:"process_history"`
	// ChainHistory bounds the finished-execution buffer.
	ChainHistory int `yaml:"chain_history"`
}

// GatewayConfig tunes the WebSocket/metrics gateway.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// Path is the WebSocket endpoint path.
	Path string `yaml:"path"`
}

// NATSConfig tunes optional NATS event publishing.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LoggingConfig tunes the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			TickInterval:   time.Second,
			ProcessHistory: 100,
			ChainHistory:   100,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    ":8090",
			Path:    "/events",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "sprawl.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// UnmarshalYAML decodes tick_interval from a duration string such as "250ms".
// Fields absent from the document keep whatever value the receiver already holds.
func (e *EngineConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TickInterval   string `yaml:"tick_interval"`
		ProcessHistory *int   `yaml:"process_history"`
		ChainHistory   *int   `yaml:"chain_history"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.TickInterval != "" {
		d, err := time.ParseDuration(raw.TickInterval)
		if err != nil {
			return fmt.Errorf("engine.tick_interval: %w", err)
		}
		e.TickInterval = d
	}
	if raw.ProcessHistory != nil {
		e.ProcessHistory = *raw.ProcessHistory
	}
	if raw.ChainHistory != nil {
		e.ChainHistory = *raw.ChainHistory
	}
	return nil
}

// Load reads a YAML configuration file, layering it over Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapInvalid(err, "config", "Load", "read configuration file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "config", "Load", "parse configuration file")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.Engine.TickInterval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("engine.tick_interval must be positive, got %s", c.Engine.TickInterval),
			"config", "Validate", "engine validation")
	}
	if c.Engine.ProcessHistory <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("engine.process_history must be positive, got %d", c.Engine.ProcessHistory),
			"config", "Validate", "engine validation")
	}
	if c.Engine.ChainHistory <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("engine.chain_history must be positive, got %d", c.Engine.ChainHistory),
			"config", "Validate", "engine validation")
	}
	if c.Gateway.Enabled {
		if c.Gateway.Addr == "" {
			return errors.WrapInvalid(
				fmt.Errorf("gateway.addr is required when the gateway is enabled"),
				"config", "Validate", "gateway validation")
		}
		if c.Gateway.Path == "" {
			return errors.WrapInvalid(
				fmt.Errorf("gateway.path is required when the gateway is enabled"),
				"config", "Validate", "gateway validation")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("nats.url is required when NATS publishing is enabled"),
			"config", "Validate", "nats validation")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level),
			"config", "Validate", "logging validation")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format),
			"config", "Validate", "logging validation")
	}
	return nil
}
