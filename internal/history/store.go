// SPDX-License-Identifier: MIT

// Package history tracks which movie IDs have already been announced so a
// release is never posted twice. Stores keep the full set in memory for the
// hot Contains path and flush through backend-specific persistence; the
// ArtifactSync wrapper adds GitHub artifact restore and upload on top of any
// backend.
package history

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Store is the sent-ID history contract the run pipeline works against.
type Store interface {
	// Restore loads the persisted set and returns it sorted ascending.
	Restore(ctx context.Context) ([]int64, error)
	// Append adds ids and reports how many were actually new.
	Append(ctx context.Context, ids []int64) (int, error)
	// Persist flushes the current set to the backend.
	Persist(ctx context.Context) error
	// Snapshot returns the current set sorted ascending.
	Snapshot() []int64
	// Contains reports whether id is already in the history.
	Contains(id int64) bool
	// Close releases backend resources.
	Close() error
}

// ParseIDs reads newline-separated numeric IDs. Malformed lines are skipped
// with a warning instead of failing the restore; losing one corrupt line is
// better than re-announcing the whole history.
func ParseIDs(data []byte, logger zerolog.Logger) []int64 {
	var ids []int64
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			logger.Warn().
				Str("line", trimmed).
				Msg("skipping malformed history line")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// RenderIDs produces the canonical file form: sorted ascending, one ID per
// line, trailing newline. An empty set renders to empty bytes.
func RenderIDs(ids []int64) []byte {
	if len(ids) == 0 {
		return []byte{}
	}
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sb strings.Builder
	for _, id := range sorted {
		sb.WriteString(strconv.FormatInt(id, 10))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// memorySet is the in-memory mirror every backend keeps for Contains.
type memorySet struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func newMemorySet() *memorySet {
	return &memorySet{ids: make(map[int64]struct{})}
}

func (s *memorySet) contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *memorySet) add(ids []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		inserted++
	}
	return inserted
}

func (s *memorySet) replace(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *memorySet) snapshot() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *memorySet) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
