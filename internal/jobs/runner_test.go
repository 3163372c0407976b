// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/history"
	"github.com/evangelie19/movie-notifier-bot/internal/telegram"
	"github.com/evangelie19/movie-notifier-bot/internal/tmdb"
)

var fixedNow = time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

type fakeProvider struct {
	releases []tmdb.Release
	err      error
	window   tmdb.Window
	calls    int
}

func (f *fakeProvider) FetchReleases(ctx context.Context, w tmdb.Window) ([]tmdb.Release, error) {
	f.calls++
	f.window = w
	if f.err != nil {
		return nil, f.err
	}
	return f.releases, nil
}

type fakeDispatcher struct {
	batches    [][]telegram.Message
	failOnCall int
	err        error
	calls      int
}

func (f *fakeDispatcher) SendBatch(ctx context.Context, msgs []telegram.Message) (int, error) {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return 0, f.err
	}
	f.batches = append(f.batches, msgs)
	return len(msgs), nil
}

type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDispatcher) SendBatch(ctx context.Context, msgs []telegram.Message) (int, error) {
	d.started <- struct{}{}
	<-d.release
	return len(msgs), nil
}

type restoreFailStore struct {
	history.Store
	restoreErr error
}

func (s *restoreFailStore) Restore(ctx context.Context) ([]int64, error) {
	return nil, s.restoreErr
}

// ctxCheckStore refuses writes on a canceled context, the way the sqlite
// and redis backends do.
type ctxCheckStore struct {
	history.Store
}

func (s *ctxCheckStore) Append(ctx context.Context, ids []int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Store.Append(ctx, ids)
}

func (s *ctxCheckStore) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Persist(ctx)
}

// cancelingDispatcher serves the first batch, then cancels the run context
// as a shutdown signal would.
type cancelingDispatcher struct {
	cancel context.CancelFunc
	calls  int
}

func (d *cancelingDispatcher) SendBatch(ctx context.Context, msgs []telegram.Message) (int, error) {
	d.calls++
	if d.calls == 1 {
		return len(msgs), nil
	}
	d.cancel()
	return 0, ctx.Err()
}

func fileStore(t *testing.T) (*history.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sent_movie_ids.txt")
	return history.NewFileStore(path), path
}

func testRunner(t *testing.T, p ReleaseProvider, d MessageDispatcher, s history.Store, chats []config.ChatConfig) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Provider:   p,
		Dispatcher: d,
		Store:      s,
		Chats:      func() []config.ChatConfig { return chats },
		Window: func(now time.Time) tmdb.Window {
			return tmdb.Window{Start: now.Add(-24 * time.Hour), End: now}
		},
		Trigger: "cli",
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return r
}

func release(id int64, title, country string) tmdb.Release {
	return tmdb.Release{
		ID:          id,
		Title:       title,
		ReleaseDate: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		Countries:   []string{country},
	}
}

func TestRunHappyPath(t *testing.T) {
	store, path := fileStore(t)
	provider := &fakeProvider{releases: []tmdb.Release{
		release(1, "First Film", "US"),
		release(2, "Second Film", "GB"),
	}}
	dispatcher := &fakeDispatcher{}
	chats := []config.ChatConfig{{ChatID: 99}}

	r := testRunner(t, provider, dispatcher, store, chats)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 2, sum.NewReleases)
	assert.Zero(t, sum.Duplicates)
	assert.Equal(t, 1, sum.MessagesSent)
	assert.Equal(t, 2, sum.HistoryAppended)
	assert.Equal(t, "success", sum.Outcome())
	assert.NotEmpty(t, sum.RunID)
	assert.True(t, provider.window.End.Equal(fixedNow))

	require.Len(t, dispatcher.batches, 1)
	require.Len(t, dispatcher.batches[0], 1)
	msg := dispatcher.batches[0][0]
	assert.Equal(t, int64(99), msg.ChatID)
	assert.Equal(t, telegram.ParseModeMarkdownV2, msg.ParseMode)
	assert.Contains(t, msg.Text, "First Film")

	assert.Equal(t, []int64{1, 2}, store.Snapshot())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", string(content))
}

func TestRunDuplicatesSendEmptyNotice(t *testing.T) {
	store, _ := fileStore(t)
	_, err := store.Append(context.Background(), []int64{1, 2})
	require.NoError(t, err)

	provider := &fakeProvider{releases: []tmdb.Release{
		release(1, "First Film", "US"),
		release(2, "Second Film", "GB"),
	}}
	dispatcher := &fakeDispatcher{}
	chats := []config.ChatConfig{{ChatID: 99}}

	r := testRunner(t, provider, dispatcher, store, chats)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Fetched)
	assert.Zero(t, sum.NewReleases)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Equal(t, 1, sum.MessagesSent)
	assert.Zero(t, sum.HistoryAppended)

	require.Len(t, dispatcher.batches, 1)
	assert.Contains(t, dispatcher.batches[0][0].Text, "нет")
}

func TestRunProviderFailure(t *testing.T) {
	store, _ := fileStore(t)
	provider := &fakeProvider{err: errors.New("tmdb down")}
	dispatcher := &fakeDispatcher{}

	r := testRunner(t, provider, dispatcher, store, []config.ChatConfig{{ChatID: 1}})
	sum, err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "discover:"))

	assert.Contains(t, sum.Err, "tmdb down")
	assert.Equal(t, "failure", sum.Outcome())
	assert.Zero(t, dispatcher.calls)
	assert.Equal(t, 1, r.Status().ConsecutiveFailures())
	assert.Empty(t, store.Snapshot())
}

func TestRunDispatchFailurePersistsSentChats(t *testing.T) {
	store, path := fileStore(t)
	provider := &fakeProvider{releases: []tmdb.Release{
		release(10, "US Film", "US"),
		release(20, "FR Film", "FR"),
	}}
	dispatcher := &fakeDispatcher{failOnCall: 2, err: errors.New("telegram down")}
	chats := []config.ChatConfig{
		{ChatID: 1, Locales: []string{"us"}},
		{ChatID: 2, Locales: []string{"fr"}},
	}

	r := testRunner(t, provider, dispatcher, store, chats)
	sum, err := r.Run(context.Background())
	require.Error(t, err)

	// The first chat was served in full, so its release lands in history
	// even though the batch as a whole failed.
	assert.Equal(t, 1, sum.MessagesSent)
	assert.Equal(t, 1, sum.HistoryAppended)
	assert.Equal(t, "partial", sum.Outcome())
	assert.Equal(t, []int64{10}, store.Snapshot())

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "10\n", string(content))
}

func TestRunShutdownCancelStillPersistsDispatched(t *testing.T) {
	inner, path := fileStore(t)
	store := &ctxCheckStore{Store: inner}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeProvider{releases: []tmdb.Release{
		release(10, "US Film", "US"),
		release(20, "FR Film", "FR"),
	}}
	dispatcher := &cancelingDispatcher{cancel: cancel}
	chats := []config.ChatConfig{
		{ChatID: 1, Locales: []string{"us"}},
		{ChatID: 2, Locales: []string{"fr"}},
	}

	r := testRunner(t, provider, dispatcher, store, chats)
	sum, err := r.Run(ctx)
	require.Error(t, err)

	// The run context died mid-batch, but the first chat's messages were
	// already delivered. The history write must not be lost with it.
	assert.Equal(t, 1, sum.HistoryAppended)
	assert.Equal(t, []int64{10}, store.Snapshot())

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "10\n", string(content))
}

func TestRunSerialized(t *testing.T) {
	store, _ := fileStore(t)
	provider := &fakeProvider{releases: []tmdb.Release{release(1, "Film", "US")}}
	dispatcher := &blockingDispatcher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}

	r := testRunner(t, provider, dispatcher, store, []config.ChatConfig{{ChatID: 1}})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()

	<-dispatcher.started
	assert.True(t, r.Active())

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunActive)

	close(dispatcher.release)
	require.NoError(t, <-done)
	assert.False(t, r.Active())
}

func TestRunRestoreFailureContinues(t *testing.T) {
	base, _ := fileStore(t)
	store := &restoreFailStore{Store: base, restoreErr: errors.New("artifact api down")}
	provider := &fakeProvider{releases: []tmdb.Release{release(7, "Film", "US")}}
	dispatcher := &fakeDispatcher{}

	r := testRunner(t, provider, dispatcher, store, []config.ChatConfig{{ChatID: 1}})
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.NewReleases)
	assert.Equal(t, 1, sum.HistoryAppended)
	assert.Equal(t, "success", sum.Outcome())
}

func TestRunEmptyReleasesNotifiesEveryChat(t *testing.T) {
	store, _ := fileStore(t)
	provider := &fakeProvider{}
	dispatcher := &fakeDispatcher{}
	chats := []config.ChatConfig{{ChatID: 1}, {ChatID: 2}}

	r := testRunner(t, provider, dispatcher, store, chats)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.MessagesSent)
	require.Len(t, dispatcher.batches, 1)
	assert.Len(t, dispatcher.batches[0], 2)
}

func TestRunManualTriggerLabel(t *testing.T) {
	store, _ := fileStore(t)
	r := testRunner(t, &fakeProvider{}, &fakeDispatcher{}, store, []config.ChatConfig{{ChatID: 1}})

	sum, err := r.RunManual(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manual", sum.Trigger)

	sum, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cli", sum.Trigger, "Run keeps the configured label")
}

func TestNewRunnerValidation(t *testing.T) {
	store, _ := fileStore(t)
	valid := RunnerConfig{
		Provider:   &fakeProvider{},
		Dispatcher: &fakeDispatcher{},
		Store:      store,
		Chats:      func() []config.ChatConfig { return nil },
		Window:     func(now time.Time) tmdb.Window { return tmdb.Window{} },
	}

	_, err := NewRunner(valid)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*RunnerConfig){
		"provider":   func(c *RunnerConfig) { c.Provider = nil },
		"dispatcher": func(c *RunnerConfig) { c.Dispatcher = nil },
		"store":      func(c *RunnerConfig) { c.Store = nil },
		"chats":      func(c *RunnerConfig) { c.Chats = nil },
		"window":     func(c *RunnerConfig) { c.Window = nil },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			_, err := NewRunner(cfg)
			assert.Error(t, err)
		})
	}
}
