// Package worker runs the pipeline on a cron schedule and serves the health
// and metrics endpoints of the long-running mode.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market-xbot/internal/pkg/config"
)

// WorkerConfig holds the scheduler settings. All fields are fail-open: an
// invalid environment value is logged and replaced by the default.
type WorkerConfig struct {
	// CronSchedule is a five-field cron expression evaluated in Timezone.
	CronSchedule string

	// Timezone is the IANA zone for CronSchedule.
	Timezone string

	// RunTimeout bounds one pipeline run.
	RunTimeout time.Duration

	// HealthPort serves /health and /health/ready.
	HealthPort int

	// MetricsPort serves /metrics.
	MetricsPort int
}

// DefaultConfig returns the production schedule: three runs a day in JST,
// around the Tokyo open, lunch and the US pre-market.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule: "0 8,12,18 * * *",
		Timezone:     "Asia/Tokyo",
		RunTimeout:   15 * time.Minute,
		HealthPort:   9091,
		MetricsPort:  9090,
	}
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateDuration(c.RunTimeout, time.Minute, 2*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("run timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health port and metrics port must differ (both %d)", c.HealthPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LoadConfigFromEnv reads CRON_SCHEDULE, WORKER_TIMEZONE, RUN_TIMEOUT,
// WORKER_HEALTH_PORT and METRICS_PORT. Invalid values fall back to defaults
// with a warning and a fallback metric.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()
	fallbackApplied := false

	note := func(field, warning string) {
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field)
		logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}

	schedule := config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = schedule.Value
	if schedule.FallbackApplied {
		note("cron_schedule", schedule.Warning)
	}

	tz := config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = tz.Value
	if tz.FallbackApplied {
		note("timezone", tz.Warning)
	}

	timeout := config.LoadEnvDuration("RUN_TIMEOUT", cfg.RunTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Minute, 2*time.Hour)
	})
	cfg.RunTimeout = timeout.Value
	if timeout.FallbackApplied {
		note("run_timeout", timeout.Warning)
	}

	portCheck := func(v int) error { return config.ValidateIntRange(v, 1024, 65535) }

	health := config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, portCheck)
	cfg.HealthPort = health.Value
	if health.FallbackApplied {
		note("health_port", health.Warning)
	}

	metricsPort := config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, portCheck)
	cfg.MetricsPort = metricsPort.Value
	if metricsPort.FallbackApplied {
		note("metrics_port", metricsPort.Warning)
	}

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg
}
