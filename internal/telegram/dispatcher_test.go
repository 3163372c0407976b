// SPDX-License-Identifier: MIT
package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

type capturedRequest struct {
	path    string
	payload sendMessageRequest
}

// botServer fakes the Bot API: scripted status codes per call, then 200.
type botServer struct {
	*httptest.Server
	mu       sync.Mutex
	statuses []int
	bodies   []string
	requests []capturedRequest
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	s := &botServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var payload sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		s.requests = append(s.requests, capturedRequest{path: r.URL.Path, payload: payload})

		status := http.StatusOK
		body := `{"ok":true,"result":{}}`
		if len(s.statuses) > 0 {
			status = s.statuses[0]
			s.statuses = s.statuses[1:]
			if len(s.bodies) > 0 {
				body = s.bodies[0]
				s.bodies = s.bodies[1:]
			} else {
				body = `{"ok":false,"description":"scripted failure"}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *botServer) script(statuses []int, bodies []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = statuses
	s.bodies = bodies
}

func (s *botServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capturedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func testDispatcher(srv *botServer, rec *sleepRecorder, chats ...int64) *Dispatcher {
	return New("123456:test-token", chats,
		WithBaseURL(srv.URL),
		WithRateLimiter(rate.NewLimiter(rate.Inf, 0)),
		WithSleep(rec.sleep),
	)
}

func TestSendBatchDeliversInOrder(t *testing.T) {
	srv := newBotServer(t)
	d := testDispatcher(srv, &sleepRecorder{}, 42, 43)

	sent, err := d.SendBatch(context.Background(), []Message{
		{ChatID: 42, Text: "first", ParseMode: ParseModeMarkdownV2, DisableWebPagePreview: true},
		{ChatID: 43, Text: "second", ParseMode: ParseModeMarkdownV2, DisableWebPagePreview: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	reqs := srv.captured()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/bot123456:test-token/sendMessage", reqs[0].path)
	assert.Equal(t, int64(42), reqs[0].payload.ChatID)
	assert.Equal(t, "first", reqs[0].payload.Text)
	assert.Equal(t, ParseModeMarkdownV2, reqs[0].payload.ParseMode, "parse_mode must be on the wire")
	assert.True(t, reqs[0].payload.DisableWebPagePreview, "disable_web_page_preview must be on the wire")
	assert.Equal(t, int64(43), reqs[1].payload.ChatID)
}

func TestSendBatchSkipsEmptyMessages(t *testing.T) {
	srv := newBotServer(t)
	d := testDispatcher(srv, &sleepRecorder{}, 42)

	sent, err := d.SendBatch(context.Background(), []Message{
		{ChatID: 42, Text: ""},
		{ChatID: 42, Text: "   \n\t"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, srv.captured(), "empty messages must not produce requests")
}

func TestSendSingleUnknownChatBeforeNetwork(t *testing.T) {
	srv := newBotServer(t)
	d := testDispatcher(srv, &sleepRecorder{}, 42)

	sent, err := d.SendBatch(context.Background(), []Message{
		{ChatID: 999, Text: "hello"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownChat)
	assert.Equal(t, 0, sent)
	assert.Empty(t, srv.captured(), "allowlist check must run before any network call")
}

func TestSendBatchStopsAtFirstHardError(t *testing.T) {
	srv := newBotServer(t)
	srv.script([]int{http.StatusBadRequest}, []string{`{"ok":false,"description":"can't parse entities"}`})
	d := testDispatcher(srv, &sleepRecorder{}, 42)

	sent, err := d.SendBatch(context.Background(), []Message{
		{ChatID: 42, Text: "bad"},
		{ChatID: 42, Text: "never sent"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClient)
	assert.Equal(t, 0, sent)
	assert.Len(t, srv.captured(), 1)
	assert.Contains(t, err.Error(), "can't parse entities")
}

func TestRetryOn429HonorsRetryAfter(t *testing.T) {
	srv := newBotServer(t)
	srv.script(
		[]int{http.StatusTooManyRequests},
		[]string{`{"ok":false,"error_code":429,"parameters":{"retry_after":3}}`},
	)
	rec := &sleepRecorder{}
	d := testDispatcher(srv, rec, 42)

	sent, err := d.SendBatch(context.Background(), []Message{{ChatID: 42, Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, rec.waits, 1)
	assert.Equal(t, 3*time.Second, rec.waits[0])
}

func TestRetryOn429UnparseableBodyDefaultsToOneSecond(t *testing.T) {
	srv := newBotServer(t)
	srv.script([]int{http.StatusTooManyRequests}, []string{"<html>slow down</html>"})
	rec := &sleepRecorder{}
	d := testDispatcher(srv, rec, 42)

	sent, err := d.SendBatch(context.Background(), []Message{{ChatID: 42, Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, rec.waits, 1)
	assert.Equal(t, time.Second, rec.waits[0])
}

func TestRetryOn5xxWalksLadder(t *testing.T) {
	srv := newBotServer(t)
	srv.script([]int{502, 503}, []string{"bad gateway", "unavailable"})
	rec := &sleepRecorder{}
	d := testDispatcher(srv, rec, 42)

	sent, err := d.SendBatch(context.Background(), []Message{{ChatID: 42, Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, rec.waits, 2)
	assert.Equal(t, 5*time.Second, rec.waits[0])
	assert.Equal(t, 15*time.Second, rec.waits[1])
	assert.Len(t, srv.captured(), 3)
}

func TestRetryLimitExceeded(t *testing.T) {
	srv := newBotServer(t)
	srv.script([]int{500, 500, 500, 500, 500}, nil)
	rec := &sleepRecorder{}
	d := testDispatcher(srv, rec, 42)

	sent, err := d.SendBatch(context.Background(), []Message{{ChatID: 42, Text: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryLimit)
	assert.Equal(t, 0, sent)
	assert.Len(t, srv.captured(), 4, "initial attempt plus three retries")
	assert.Len(t, rec.waits, 3)
}

func TestTokenNeverInErrorStrings(t *testing.T) {
	srv := newBotServer(t)
	srv.script([]int{403}, []string{`{"ok":false,"description":"bot was blocked"}`})
	d := testDispatcher(srv, &sleepRecorder{}, 42)

	_, err := d.SendBatch(context.Background(), []Message{{ChatID: 42, Text: "hi"}})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "test-token")
	assert.NotContains(t, err.Error(), "123456:")
}

func TestNewFromConfigProdRequiresToken(t *testing.T) {
	_, err := NewFromConfig(
		config.TelegramSettings{Env: "prod", RateLimit: 1, RateBurst: 1, MaxRetries: 3},
		[]config.ChatConfig{{ChatID: 42}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestNewFromConfigDevDryRun(t *testing.T) {
	d, err := NewFromConfig(
		config.TelegramSettings{Env: "dev", RateLimit: 100, RateBurst: 1, MaxRetries: 3},
		[]config.ChatConfig{{ChatID: 42}},
	)
	require.NoError(t, err)

	sent, err := d.SendBatch(context.Background(), []Message{{ChatID: 42, Text: "dry"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "dry-run transport must fake success")
}

func TestSendBatchContextCanceled(t *testing.T) {
	srv := newBotServer(t)
	d := testDispatcher(srv, &sleepRecorder{}, 42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sent, err := d.SendBatch(ctx, []Message{{ChatID: 42, Text: "hi"}})
	require.Error(t, err)
	assert.Equal(t, 0, sent)
	assert.ErrorIs(t, err, context.Canceled)
}
