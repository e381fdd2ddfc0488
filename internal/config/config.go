package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the configuration for the reminder service.
// Environment variables are parsed from the ARGUS_ prefix.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Store Configuration
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/argus.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Scheduler cadence and policy
	TriggerSweepSeconds   int `envconfig:"TRIGGER_SWEEP_SECONDS" default:"60"`
	ReminderSweepSeconds  int `envconfig:"REMINDER_SWEEP_SECONDS" default:"30"`
	SweepToleranceMinutes int `envconfig:"SWEEP_TOLERANCE_MINUTES" default:"5"`
	// ExpireAfterHours marks overdue events expired; 0 disables the sweep.
	ExpireAfterHours int `envconfig:"EXPIRE_AFTER_HOURS" default:"24"`

	// Reminder policy
	DismissalTTLMinutes   int     `envconfig:"DISMISSAL_TTL_MINUTES" default:"30"`
	ConflictWindowMinutes int     `envconfig:"CONFLICT_WINDOW_MINUTES" default:"60"`
	ConfidenceThreshold   float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.4"`

	// Extraction oracle. Empty URL disables the /api/messages endpoint.
	OracleURL    string `envconfig:"ORACLE_URL" default:""`
	OracleAPIKey string `envconfig:"ORACLE_API_KEY" default:""`
	OracleModel  string `envconfig:"ORACLE_MODEL" default:"gemini-2.0-flash"`

	// Health checking
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates driver selection and numeric ranges.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("ARGUS_SQLITE_PATH required for sqlite driver")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("ARGUS_POSTGRES_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	if c.TriggerSweepSeconds <= 0 || c.ReminderSweepSeconds <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	if c.SweepToleranceMinutes < 0 || c.DismissalTTLMinutes <= 0 || c.ConflictWindowMinutes <= 0 {
		return fmt.Errorf("tolerance, dismissal TTL and conflict window must be positive")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1]")
	}
	if c.ExpireAfterHours < 0 {
		return fmt.Errorf("EXPIRE_AFTER_HOURS must not be negative")
	}
	return nil
}

// New creates a Config by parsing ARGUS_-prefixed environment variables.
// Example: ARGUS_HTTP_PORT, ARGUS_DB_DRIVER, ARGUS_ORACLE_URL.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ARGUS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting creates a config with test-friendly defaults.
func NewForTesting() *Config {
	return &Config{
		HTTPPort:                  8080,
		DBDriver:                  "sqlite",
		SQLitePath:                ":memory:",
		TriggerSweepSeconds:       60,
		ReminderSweepSeconds:      30,
		SweepToleranceMinutes:     5,
		ExpireAfterHours:          24,
		DismissalTTLMinutes:       30,
		ConflictWindowMinutes:     60,
		ConfidenceThreshold:       0.4,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) TriggerSweepInterval() time.Duration {
	return time.Duration(c.TriggerSweepSeconds) * time.Second
}

func (c *Config) ReminderSweepInterval() time.Duration {
	return time.Duration(c.ReminderSweepSeconds) * time.Second
}

func (c *Config) SweepTolerance() time.Duration {
	return time.Duration(c.SweepToleranceMinutes) * time.Minute
}

func (c *Config) DismissalTTL() time.Duration {
	return time.Duration(c.DismissalTTLMinutes) * time.Minute
}

func (c *Config) ConflictWindow() time.Duration {
	return time.Duration(c.ConflictWindowMinutes) * time.Minute
}

func (c *Config) ExpireAfter() time.Duration {
	return time.Duration(c.ExpireAfterHours) * time.Hour
}
