// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and the environment over the defaults.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/lineup/internal/domain/estimate"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the backend: memory or postgres.
	Store string `koanf:"store"`

	// DatabaseURL is the postgres DSN used when Store is postgres.
	DatabaseURL string `koanf:"database_url"`

	// RedisURL enables redis fan-out of notifications when set.
	RedisURL string `koanf:"redis_url"`

	// RedisChannelPrefix is prepended to every notification topic.
	RedisChannelPrefix string `koanf:"redis_channel_prefix"`

	// ClaimMaxAttempts bounds the claim retry loop.
	ClaimMaxAttempts int `koanf:"claim_max_attempts"`

	// HistoryWindow is the number of completed services feeding the rate.
	HistoryWindow int `koanf:"history_window"`

	// CongestionThreshold and CongestionPercent scale ETAs on crowded lines.
	CongestionThreshold int `koanf:"congestion_threshold"`
	CongestionPercent   int `koanf:"congestion_percent"`

	// Autopilot keeps idle counters calling the next participant.
	AutopilotEnabled    bool   `koanf:"autopilot_enabled"`
	AutopilotIntervalMS int    `koanf:"autopilot_interval_ms"`
	AutopilotServiceMS  int    `koanf:"autopilot_service_ms"`
	AutopilotCounters   string `koanf:"autopilot_counters"`

	// OTelEndpoint enables OTLP/gRPC trace export when set.
	OTelEndpoint string `koanf:"otel_endpoint"`
	OTelInsecure bool   `koanf:"otel_insecure"`

	// SimulateMax caps synthetic passengers per simulate request.
	SimulateMax int `koanf:"simulate_max"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		RedisChannelPrefix:  "lineup:",
		ClaimMaxAttempts:    5,
		HistoryWindow:       estimate.DefaultHistoryWindow,
		CongestionThreshold: estimate.DefaultCongestionThreshold,
		CongestionPercent:   estimate.DefaultCongestionPercent,
		AutopilotIntervalMS: 3000,
		AutopilotServiceMS:  0,
		OTelInsecure:        true,
		SimulateMax:         200,
	}
}

// AutopilotInterval returns the tick interval as a duration.
func (c *Config) AutopilotInterval() time.Duration {
	return time.Duration(c.AutopilotIntervalMS) * time.Millisecond
}

// AutopilotService returns the simulated service time as a duration.
func (c *Config) AutopilotService() time.Duration {
	return time.Duration(c.AutopilotServiceMS) * time.Millisecond
}

// Counters splits the comma separated autopilot counter list.
func (c *Config) Counters() []string {
	var out []string
	for _, id := range strings.Split(c.AutopilotCounters, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StorePostgres && c.DatabaseURL == "":
		return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.LogFormat)
	case c.ClaimMaxAttempts < 1:
		return fmt.Errorf("%w: claim_max_attempts must be at least 1", ErrInvalidConfig)
	case c.HistoryWindow < 1:
		return fmt.Errorf("%w: history_window must be at least 1", ErrInvalidConfig)
	case c.CongestionThreshold < 0:
		return fmt.Errorf("%w: congestion_threshold must not be negative", ErrInvalidConfig)
	case c.CongestionPercent < 100:
		return fmt.Errorf("%w: congestion_percent must be at least 100", ErrInvalidConfig)
	case c.AutopilotEnabled && c.AutopilotIntervalMS <= 0:
		return fmt.Errorf("%w: autopilot_interval_ms must be positive", ErrInvalidConfig)
	case c.AutopilotServiceMS < 0:
		return fmt.Errorf("%w: autopilot_service_ms must not be negative", ErrInvalidConfig)
	case c.SimulateMax < 1:
		return fmt.Errorf("%w: simulate_max must be at least 1", ErrInvalidConfig)
	}
	return nil
}
