package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the env-driven configuration surface spec.md §6 names, loaded
// the way the teacher's config.Config is loaded: caarlos0/env for parsing,
// go-playground/validator for constraints.
type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  string `env:"HEALTH_PORT" envDefault:"8080"`

	// InstanceID identifies this peer; "AUTO" generates a stable id for the
	// life of the process (spec.md §6, SPEC_FULL.md §5).
	InstanceID string `env:"INSTANCE_ID" envDefault:"AUTO" validate:"required"`

	IsClustered              bool `env:"IS_CLUSTERED" envDefault:"true"`
	ClusterCheckinIntervalMs int  `env:"CLUSTER_CHECKIN_INTERVAL_MS" envDefault:"15000" validate:"min=1000"`
	FailureFactor            float64 `env:"CLUSTER_FAILURE_FACTOR" envDefault:"3.0" validate:"min=1"`

	MisfireThresholdMs           int `env:"MISFIRE_THRESHOLD_MS" envDefault:"60000" validate:"min=0"`
	MaxMisfiresToHandleAtATime   int `env:"MAX_MISFIRES_TO_HANDLE_AT_A_TIME" envDefault:"20" validate:"min=1"`
	AcquireTriggersWindowMs      int `env:"ACQUIRE_TRIGGERS_WINDOW_MS" envDefault:"0" validate:"min=0"`

	LockOnInsert bool `env:"LOCK_ON_INSERT" envDefault:"false"`
	UseDBLocks   bool `env:"USE_DB_LOCKS" envDefault:"true"`

	// SelectWithLockSQLOverride is the dialect override spec.md §6 names.
	// When non-empty it replaces the row-lock manager's default query; with
	// UseDBLocks set, Load rejects a non-empty value shorter than 10 bytes.
	SelectWithLockSQLOverride string `env:"SELECT_WITH_LOCK_SQL"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.UseDBLocks && cfg.SelectWithLockSQLOverride != "" && len(cfg.SelectWithLockSQLOverride) < 10 {
		return nil, fmt.Errorf("invalid config: select_with_lock_sql override looks truncated")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) CheckinInterval() time.Duration {
	return time.Duration(c.ClusterCheckinIntervalMs) * time.Millisecond
}

func (c *Config) MisfireThreshold() time.Duration {
	return time.Duration(c.MisfireThresholdMs) * time.Millisecond
}

func (c *Config) AcquireTriggersWindow() time.Duration {
	return time.Duration(c.AcquireTriggersWindowMs) * time.Millisecond
}
