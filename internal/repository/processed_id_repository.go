package repository

import (
	"context"
	"errors"

	"market-xbot/internal/domain/entity"
)

// ErrCorruptState means the persisted set exists but cannot be decoded.
// The pipeline must stop instead of treating it as empty, otherwise every
// previously published item would be published again.
var ErrCorruptState = errors.New("processed id state is corrupt")

// ProcessedIDRepository loads and stores the deduplication state.
// Load on a store that has never been written returns an empty set.
// Commit replaces the stored set atomically: a reader sees either the old or the
// new set, never a partial one.
type ProcessedIDRepository interface {
	Load(ctx context.Context) (*entity.ProcessedIdSet, error)
	Commit(ctx context.Context, set *entity.ProcessedIdSet) error
}
