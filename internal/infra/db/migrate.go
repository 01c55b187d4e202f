package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema/processed_ids.sql
var processedIDsSQL string

// MigrateUp creates the tables used by the state store. It is idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, processedIDsSQL); err != nil {
		return fmt.Errorf("create processed_ids: %w", err)
	}
	return nil
}

// MigrateDown drops everything MigrateUp created.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS processed_ids`); err != nil {
		return fmt.Errorf("drop processed_ids: %w", err)
	}
	return nil
}
