// SPDX-License-Identifier: MIT
package jobs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openArchive(t *testing.T, dir string, retention int) *Archive {
	t.Helper()
	a, err := OpenArchive(dir, retention)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func archivedSummary(runID string, started time.Time) Summary {
	return Summary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

func TestArchiveListNewestFirst(t *testing.T) {
	a := openArchive(t, t.TempDir(), 10)
	base := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	require.NoError(t, a.Record(archivedSummary("first", base)))
	require.NoError(t, a.Record(archivedSummary("second", base.Add(time.Minute))))
	require.NoError(t, a.Record(archivedSummary("third", base.Add(2*time.Minute))))

	got, err := a.List(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].RunID)
	assert.Equal(t, "second", got[1].RunID)

	all, err := a.List(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestArchiveRetentionPrunesOldest(t *testing.T) {
	a := openArchive(t, t.TempDir(), 2)
	base := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	require.NoError(t, a.Record(archivedSummary("first", base)))
	require.NoError(t, a.Record(archivedSummary("second", base.Add(time.Minute))))
	require.NoError(t, a.Record(archivedSummary("third", base.Add(2*time.Minute))))

	got, err := a.List(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].RunID)
	assert.Equal(t, "second", got[1].RunID)
}

func TestArchiveSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	base := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	a, err := OpenArchive(dir, 10)
	require.NoError(t, err)
	require.NoError(t, a.Record(archivedSummary("persisted", base)))
	require.NoError(t, a.Close())

	reopened := openArchive(t, dir, 10)
	got, err := reopened.List(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].RunID)
	assert.True(t, got[0].StartedAt.Equal(base))
}

func TestArchiveListEmpty(t *testing.T) {
	a := openArchive(t, t.TempDir(), 10)

	got, err := a.List(5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = a.List(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
