package circuitbreaker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// StateStoreConfig returns configuration for the processed-id database.
// Opens after 5 consecutive failures.
func StateStoreConfig() Config {
	return Config{
		Name:             "state-store",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
}

// DB guards a *sql.DB with a breaker. Only the calls the state store needs are
// exposed: a read query and a transaction.
type DB struct {
	cb *CircuitBreaker
	db *sql.DB
}

// NewDB wraps db with StateStoreConfig.
func NewDB(db *sql.DB, logger *slog.Logger) *DB {
	return &DB{cb: New(StateStoreConfig(), logger), db: db}
}

// QueryContext runs a query through the breaker.
func (g *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return Run(g.cb, func() (*sql.Rows, error) {
		return g.db.QueryContext(ctx, query, args...)
	})
}

// InTx runs fn inside a transaction. The transaction is rolled back when fn
// fails and the whole unit counts as one breaker request.
func (g *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		tx, err := g.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return nil, nil
	})
	return err
}

// IsOpen returns true if the breaker is rejecting calls.
func (g *DB) IsOpen() bool {
	return g.cb.IsOpen()
}
