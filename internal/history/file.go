// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
)

// FileStore keeps the history in a plain text file, one ID per line. The
// default backend; it is what GitHub Actions runs carry between jobs.
type FileStore struct {
	path   string
	set    *memorySet
	logger zerolog.Logger
}

// NewFileStore builds a store around path. Nothing is read until Restore.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		set:    newMemorySet(),
		logger: log.WithComponent("history").With().Str(log.FieldBackend, "file").Logger(),
	}
}

func (s *FileStore) Restore(ctx context.Context) ([]int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.set.replace(nil)
		metrics.RecordHistorySize(0)
		return []int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	s.set.replace(ParseIDs(data, s.logger))
	metrics.RecordHistorySize(s.set.size())
	return s.set.snapshot(), nil
}

func (s *FileStore) Append(ctx context.Context, ids []int64) (int, error) {
	inserted := s.set.add(ids)
	metrics.RecordHistorySize(s.set.size())
	return inserted, nil
}

// Persist writes the canonical file form atomically. The file is fsynced
// before the rename so a power cut never leaves a truncated history.
func (s *FileStore) Persist(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return fmt.Errorf("create pending history file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending history file")
		}
	}()

	if _, err := pending.Write(RenderIDs(s.set.snapshot())); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

func (s *FileStore) Snapshot() []int64      { return s.set.snapshot() }
func (s *FileStore) Contains(id int64) bool { return s.set.contains(id) }
func (s *FileStore) Close() error           { return nil }
