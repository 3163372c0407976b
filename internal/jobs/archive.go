// SPDX-License-Identifier: MIT
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

const (
	archivePrefix    = "run:"
	defaultRetention = 50
)

// Archive keeps recent run summaries in a local Badger database so the
// admin API can serve history across daemon restarts. Keys are
// "run:<started unix nano, zero padded>:<run id>", which makes
// lexicographic order chronological.
type Archive struct {
	db        *badger.DB
	retention int
	logger    zerolog.Logger
}

// OpenArchive opens (and if needed creates) the archive at path. retention
// bounds how many summaries are kept; values below one fall back to the
// default.
func OpenArchive(path string, retention int) (*Archive, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	if retention < 1 {
		retention = defaultRetention
	}
	return &Archive{
		db:        db,
		retention: retention,
		logger:    log.WithComponent("archive"),
	}, nil
}

// Record stores the summary and prunes entries beyond the retention bound.
func (a *Archive) Record(sum Summary) error {
	key := fmt.Appendf(nil, "%s%020d:%s", archivePrefix, sum.StartedAt.UnixNano(), sum.RunID)
	val, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("store run summary: %w", err)
	}
	return a.prune()
}

func (a *Archive) prune() error {
	prefix := []byte(archivePrefix)
	return a.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		if len(keys) <= a.retention {
			return nil
		}
		for _, key := range keys[:len(keys)-a.retention] {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns up to n summaries, newest first.
func (a *Archive) List(n int) ([]Summary, error) {
	if n < 1 {
		return []Summary{}, nil
	}
	prefix := []byte(archivePrefix)
	// Seek past every key under the prefix, then walk backwards.
	seek := append(append([]byte{}, prefix...), 0xFF)

	var out []Summary
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < n; it.Next() {
			var sum Summary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sum)
			})
			if err != nil {
				a.logger.Warn().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("skipping unreadable archive entry")
				continue
			}
			out = append(out, sum)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run summaries: %w", err)
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// Close releases the database.
func (a *Archive) Close() error { return a.db.Close() }
