package worker

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-xbot/internal/observability/logging"
)

func clearWorkerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CRON_SCHEDULE", "WORKER_TIMEZONE", "RUN_TIMEOUT", "WORKER_HEALTH_PORT", "METRICS_PORT"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0 8,12,18 * * *", cfg.CronSchedule)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, 15*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 9091, cfg.HealthPort)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.NoError(t, cfg.Validate())
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr string
	}{
		{"bad cron", func(c *WorkerConfig) { c.CronSchedule = "often" }, "cron schedule"},
		{"empty timezone", func(c *WorkerConfig) { c.Timezone = "" }, "timezone"},
		{"timeout too short", func(c *WorkerConfig) { c.RunTimeout = time.Second }, "run timeout"},
		{"health port too low", func(c *WorkerConfig) { c.HealthPort = 80 }, "health port"},
		{"same ports", func(c *WorkerConfig) { c.MetricsPort = c.HealthPort }, "must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkerConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CronSchedule = ""
	cfg.Timezone = "Nowhere/Land"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron schedule")
	assert.Contains(t, err.Error(), "timezone")
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("CRON_SCHEDULE", "30 7 * * 1-5")
	t.Setenv("WORKER_TIMEZONE", "UTC")
	t.Setenv("RUN_TIMEOUT", "20m")
	t.Setenv("WORKER_HEALTH_PORT", "8081")
	t.Setenv("METRICS_PORT", "8082")
	m := NewWorkerMetrics(prometheus.NewRegistry())

	cfg := LoadConfigFromEnv(logging.Discard(), m)

	assert.Equal(t, "30 7 * * 1-5", cfg.CronSchedule)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 20*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 8081, cfg.HealthPort)
	assert.Equal(t, 8082, cfg.MetricsPort)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FallbackActive))
}

func TestLoadConfigFromEnv_FallsBack(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("CRON_SCHEDULE", "every morning")
	t.Setenv("WORKER_TIMEZONE", "Mars/Olympus")
	t.Setenv("RUN_TIMEOUT", "5s")
	t.Setenv("WORKER_HEALTH_PORT", "99999")
	m := NewWorkerMetrics(prometheus.NewRegistry())

	cfg := LoadConfigFromEnv(logging.Discard(), m)

	def := DefaultConfig()
	assert.Equal(t, def.CronSchedule, cfg.CronSchedule)
	assert.Equal(t, def.Timezone, cfg.Timezone)
	assert.Equal(t, def.RunTimeout, cfg.RunTimeout)
	assert.Equal(t, def.HealthPort, cfg.HealthPort)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackActive))
	for _, field := range []string{"cron_schedule", "timezone", "run_timeout", "health_port"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues(field)), field)
	}
}
