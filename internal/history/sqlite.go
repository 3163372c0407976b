// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
)

// SQLiteStore keeps the history in a local SQLite database. Appends are
// durable immediately, so Persist has nothing left to flush.
type SQLiteStore struct {
	db     *sql.DB
	set    *memorySet
	logger zerolog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	// modernc.org/sqlite takes pragmas as _pragma=name(value) parameters.
	// busy_timeout avoids "database locked" errors when a run overlaps an
	// admin API read.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		set:    newMemorySet(),
		logger: log.WithComponent("history").With().Str(log.FieldBackend, "sqlite").Logger(),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sent_movies (
		id INTEGER PRIMARY KEY,
		added_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Restore(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sent_movies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	s.set.replace(ids)
	metrics.RecordHistorySize(s.set.size())
	return s.set.snapshot(), nil
}

func (s *SQLiteStore) Append(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO sent_movies (id, added_at) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare history insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id, now)
		if err != nil {
			return 0, fmt.Errorf("insert history id %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("count history insert: %w", err)
		}
		inserted += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit history tx: %w", err)
	}

	s.set.add(ids)
	metrics.RecordHistorySize(s.set.size())
	return inserted, nil
}

// Persist is a no-op: Append commits rows as it goes.
func (s *SQLiteStore) Persist(ctx context.Context) error { return nil }

func (s *SQLiteStore) Snapshot() []int64      { return s.set.snapshot() }
func (s *SQLiteStore) Contains(id int64) bool { return s.set.contains(id) }
func (s *SQLiteStore) Close() error           { return s.db.Close() }
