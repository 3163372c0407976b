// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

// artifactFileName is the entry name inside the uploaded zip, kept stable
// so old workflow runs and new ones read each other's state.
const artifactFileName = "sent_movie_ids.txt"

// ArtifactClient is the slice of the artifact API the sync needs.
// *artifact.Client satisfies it.
type ArtifactClient interface {
	Download(ctx context.Context, name string) ([]byte, bool, error)
	Upload(ctx context.Context, name, fileName string, content []byte) error
}

// ArtifactSync layers GitHub artifact restore and upload over any Store.
// Restored artifact IDs are merged into the wrapped store rather than
// replacing it: a stale artifact must never resurrect already-sent releases.
type ArtifactSync struct {
	store      Store
	client     ArtifactClient
	name       string
	legacyName string
	logger     zerolog.Logger
}

// NewArtifactSync wraps store. legacyName may be empty to skip the
// fallback lookup.
func NewArtifactSync(store Store, client ArtifactClient, name, legacyName string) *ArtifactSync {
	return &ArtifactSync{
		store:      store,
		client:     client,
		name:       name,
		legacyName: legacyName,
		logger:     log.WithComponent("history").With().Str(log.FieldBackend, "artifact").Logger(),
	}
}

// Restore loads the wrapped store, then merges the artifact on top. The
// legacy artifact name is only consulted when the current one yields
// nothing, covering histories written before the name change.
func (s *ArtifactSync) Restore(ctx context.Context) ([]int64, error) {
	if _, err := s.store.Restore(ctx); err != nil {
		// The artifact is authoritative; a corrupt local copy must not
		// block restoring from it.
		s.logger.Warn().Err(err).
			Str(log.FieldEvent, "history.restore.local_failed").
			Msg("local history unreadable, continuing with artifact only")
	}

	payload, found, err := s.client.Download(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("download artifact %q: %w", s.name, err)
	}
	name := s.name
	if !found && s.legacyName != "" {
		payload, found, err = s.client.Download(ctx, s.legacyName)
		if err != nil {
			return nil, fmt.Errorf("download artifact %q: %w", s.legacyName, err)
		}
		name = s.legacyName
	}

	if found {
		ids := ParseIDs(payload, s.logger)
		inserted, err := s.store.Append(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("merge artifact ids: %w", err)
		}
		s.logger.Info().
			Str(log.FieldEvent, "history.restore.artifact").
			Str(log.FieldArtifact, name).
			Int("ids", len(ids)).
			Int("merged", inserted).
			Msg("history restored from artifact")
		if err := s.store.Persist(ctx); err != nil {
			s.logger.Warn().Err(err).
				Str(log.FieldEvent, "history.restore.persist_failed").
				Msg("could not write restored history locally")
		}
	}

	return s.store.Snapshot(), nil
}

func (s *ArtifactSync) Append(ctx context.Context, ids []int64) (int, error) {
	return s.store.Append(ctx, ids)
}

// Persist flushes the wrapped store and uploads the canonical file form as
// the current artifact.
func (s *ArtifactSync) Persist(ctx context.Context) error {
	if err := s.store.Persist(ctx); err != nil {
		return err
	}
	content := RenderIDs(s.store.Snapshot())
	if err := s.client.Upload(ctx, s.name, artifactFileName, content); err != nil {
		return fmt.Errorf("upload artifact %q: %w", s.name, err)
	}
	return nil
}

func (s *ArtifactSync) Snapshot() []int64      { return s.store.Snapshot() }
func (s *ArtifactSync) Contains(id int64) bool { return s.store.Contains(id) }
func (s *ArtifactSync) Close() error           { return s.store.Close() }

// NewStoreFromConfig builds the configured backend. Artifact wrapping is
// the caller's call because it needs GitHub credentials.
func NewStoreFromConfig(cfg config.HistorySettings) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path), nil
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	case "redis":
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
