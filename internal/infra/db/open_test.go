package db

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_MAX_IDLE_CONNS", "")
	t.Setenv("DB_CONN_MAX_LIFETIME", "")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "")

	assert.Equal(t, DefaultConnectionConfig(), ConnectionConfigFromEnv())
}

func TestConnectionConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "8")
	t.Setenv("DB_MAX_IDLE_CONNS", "-1")
	t.Setenv("DB_CONN_MAX_LIFETIME", "1h")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "bogus")

	cfg := ConnectionConfigFromEnv()

	assert.Equal(t, 8, cfg.MaxOpenConns)
	assert.Equal(t, DefaultConnectionConfig().MaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, DefaultConnectionConfig().ConnMaxIdleTime, cfg.ConnMaxIdleTime)
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
