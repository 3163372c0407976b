// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	inserted, err := s.Append(context.Background(), []int64{7, 5})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.NoError(t, s.Persist(context.Background()))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	ids, err := reopened.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, ids)
	assert.True(t, reopened.Contains(7))

	// INSERT OR IGNORE keeps the count honest across restarts.
	inserted, err = reopened.Append(context.Background(), []int64{5, 6})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, []int64{5, 6, 7}, reopened.Snapshot())
}

func TestSQLiteStoreAppendEmpty(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	inserted, err := s.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}
