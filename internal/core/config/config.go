package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Broker    BrokerConfig    `koanf:"broker"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Retention RetentionConfig `koanf:"retention"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type BrokerConfig struct {
	URL      string `koanf:"url"`
	ClientID string `koanf:"client_id"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// VehicleTopic is where vehicle-generated events arrive;
	// UpdatesTopic is where refreshed statistics are published.
	VehicleTopic string `koanf:"vehicle_topic"`
	UpdatesTopic string `koanf:"updates_topic"`
}

type PipelineConfig struct {
	// WindowMS is the batch window length in milliseconds.
	WindowMS int `koanf:"window_ms"`

	// InputBufferSize bounds the channel between the broker callback and the
	// batcher; BatchBufferSize bounds the handoff between batcher and
	// committer (>= 1 so the next window buffers while a commit runs).
	InputBufferSize int `koanf:"input_buffer_size"`
	BatchBufferSize int `koanf:"batch_buffer_size"`
}

type RetentionConfig struct {
	// ProcessedTTLDays is how long idempotency records are kept.
	ProcessedTTLDays int `koanf:"processed_ttl_days"`

	// SweepInterval is how often expired records are purged.
	SweepInterval string `koanf:"sweep_interval"`
}

func (c PipelineConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

func (c RetentionConfig) TTL() time.Duration {
	return time.Duration(c.ProcessedTTLDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Broker.URL) == "" {
		return fmt.Errorf("broker.url is required")
	}
	if strings.TrimSpace(c.Broker.ClientID) == "" {
		return fmt.Errorf("broker.client_id is required")
	}
	if strings.TrimSpace(c.Broker.VehicleTopic) == "" {
		return fmt.Errorf("broker.vehicle_topic is required")
	}
	if strings.TrimSpace(c.Broker.UpdatesTopic) == "" {
		return fmt.Errorf("broker.updates_topic is required")
	}

	if c.Pipeline.WindowMS <= 0 {
		return fmt.Errorf("pipeline.window_ms must be > 0")
	}
	if c.Pipeline.InputBufferSize <= 0 {
		return fmt.Errorf("pipeline.input_buffer_size must be > 0")
	}
	if c.Pipeline.BatchBufferSize < 1 {
		return fmt.Errorf("pipeline.batch_buffer_size must be >= 1")
	}

	if c.Retention.ProcessedTTLDays <= 0 {
		return fmt.Errorf("retention.processed_ttl_days must be > 0")
	}
	interval, err := time.ParseDuration(c.Retention.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid retention.sweep_interval %q: %w", c.Retention.SweepInterval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("retention.sweep_interval must be > 0")
	}

	return nil
}

// Load parses config from defaults + file + env, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                  8080,
		"server.host":                  "0.0.0.0",
		"server.mode":                  "release",
		"database.dsn":                 "postgres://localhost:5432/fleet_reporter?sslmode=disable",
		"database.max_open_conns":      25,
		"database.max_idle_conns":      25,
		"database.auto_migrate":        true,
		"broker.url":                   "tcp://localhost:1883",
		"broker.client_id":             "fleet-reporter",
		"broker.vehicle_topic":         "fleet/vehicles/generated",
		"broker.updates_topic":         "emi-gateway-materialized-view-updates",
		"pipeline.window_ms":           1000,
		"pipeline.input_buffer_size":   1024,
		"pipeline.batch_buffer_size":   4,
		"retention.processed_ttl_days": 30,
		"retention.sweep_interval":     "1h",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("REPORTER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REPORTER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
