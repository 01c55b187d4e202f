package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/repository"
	"market-xbot/internal/resilience/circuitbreaker"
)

// ProcessedIDRepo stores the processed id set in Postgres. Insertion order is
// kept in the position column. The table is created by db.MigrateUp.
type ProcessedIDRepo struct {
	db     *circuitbreaker.DB
	logger *slog.Logger
}

var _ repository.ProcessedIDRepository = (*ProcessedIDRepo)(nil)

func NewProcessedIDRepo(db *sql.DB, logger *slog.Logger) *ProcessedIDRepo {
	return &ProcessedIDRepo{db: circuitbreaker.NewDB(db, logger), logger: logger}
}

func (repo *ProcessedIDRepo) Load(ctx context.Context) (*entity.ProcessedIdSet, error) {
	const query = `
SELECT id
FROM processed_ids
ORDER BY position ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	set := entity.NewProcessedIdSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("Load: %w: %v", repository.ErrCorruptState, err)
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return set, nil
}

// Commit replaces the table contents with set inside one transaction.
func (repo *ProcessedIDRepo) Commit(ctx context.Context, set *entity.ProcessedIdSet) error {
	const (
		deleteAll = `DELETE FROM processed_ids`
		insert    = `INSERT INTO processed_ids (position, id) VALUES ($1, $2)`
	)
	ids := set.IDs()

	err := repo.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteAll); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, int64(i), id); err != nil {
				return fmt.Errorf("insert %q: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}

	repo.logger.Info("processed id state committed",
		slog.String("backend", "postgres"),
		slog.Int("count", len(ids)))
	return nil
}
