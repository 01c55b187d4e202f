// Package state persists the processed id set to a local JSON file.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/repository"
)

// JSONFileStore keeps the set as a pretty-printed JSON array of strings.
// Writes go to a temporary file in the same directory which is fsynced and
// renamed over the target, so a crash leaves either the old or the new file.
type JSONFileStore struct {
	path   string
	logger *slog.Logger
}

var _ repository.ProcessedIDRepository = (*JSONFileStore)(nil)

// NewJSONFileStore returns a store backed by path.
func NewJSONFileStore(path string, logger *slog.Logger) *JSONFileStore {
	return &JSONFileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *JSONFileStore) Path() string {
	return s.path
}

// Load reads the set. A missing file is an empty set; anything that is not a
// JSON array of strings is repository.ErrCorruptState.
func (s *JSONFileStore) Load(ctx context.Context) (*entity.ProcessedIdSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no processed id state yet, starting empty",
			slog.String("path", s.path))
		return entity.NewProcessedIdSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	var ids []string
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&ids); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrCorruptState, s.path, err)
	}
	if ids == nil {
		return nil, fmt.Errorf("%w: %s: expected a JSON array", repository.ErrCorruptState, s.path)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: trailing data after array", repository.ErrCorruptState, s.path)
	}

	set := entity.NewProcessedIdSet(ids...)
	s.logger.Debug("processed id state loaded",
		slog.String("path", s.path),
		slog.Int("count", set.Len()))
	return set, nil
}

// Commit replaces the file with set.
func (s *JSONFileStore) Commit(ctx context.Context, set *entity.ProcessedIdSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(set.IDs(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if err := writeAtomic(dir, s.path, data); err != nil {
		return err
	}

	s.logger.Info("processed id state committed",
		slog.String("path", s.path),
		slog.Int("count", set.Len()))
	return nil
}

func writeAtomic(dir, path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}

	// Persist the rename itself. Not every filesystem supports syncing a
	// directory, so failure here is ignored.
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
