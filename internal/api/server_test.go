// SPDX-License-Identifier: MIT
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/health"
	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
)

const testToken = "test-api-token"

type fakeTrigger struct {
	sum    jobs.Summary
	err    error
	status *jobs.Status
	active bool
	calls  int
}

func (f *fakeTrigger) RunManual(ctx context.Context) (jobs.Summary, error) {
	f.calls++
	return f.sum, f.err
}

func (f *fakeTrigger) Active() bool         { return f.active }
func (f *fakeTrigger) Status() *jobs.Status { return f.status }

type fakeLister struct {
	runs     []jobs.Summary
	err      error
	gotLimit int
}

func (f *fakeLister) List(limit int) ([]jobs.Summary, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.runs, nil
}

type fakeHistory struct {
	ids []int64
}

func (f *fakeHistory) Snapshot() []int64 { return f.ids }

func testServer(t *testing.T, trigger *fakeTrigger, runs RunLister) *Server {
	t.Helper()
	if trigger.status == nil {
		trigger.status = jobs.NewStatus()
	}
	s, err := New(Options{
		Config: func() config.AppConfig {
			return config.AppConfig{Daemon: config.DaemonSettings{APIToken: testToken}}
		},
		Trigger: trigger,
		Runs:    runs,
		History: &fakeHistory{ids: []int64{3, 5, 12}},
		Health:  health.NewManager("test"),
		Version: "test",
	})
	require.NoError(t, err)
	return s
}

func doRequest(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("X-API-Token", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	rec := doRequest(h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/status", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodGet, "/api/status", testToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBearerHeader(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "bearer "+testToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")
}

func TestAuthFailClosedWithoutConfiguredToken(t *testing.T) {
	trigger := &fakeTrigger{status: jobs.NewStatus()}
	s, err := New(Options{
		Config:  func() config.AppConfig { return config.AppConfig{} },
		Trigger: trigger,
		History: &fakeHistory{},
		Health:  health.NewManager("test"),
	})
	require.NoError(t, err)

	rec := doRequest(s.Handler(), http.MethodGet, "/api/status", "anything")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProbesNeedNoToken(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/readyz", "").Code)
}

func TestStatusEndpoint(t *testing.T) {
	trigger := &fakeTrigger{active: true, status: jobs.NewStatus()}
	trigger.status.Record(jobs.Summary{
		RunID:        "run-1",
		FinishedAt:   time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC),
		MessagesSent: 2,
	})
	h := testServer(t, trigger, nil).Handler()

	rec := doRequest(h, http.MethodGet, "/api/status", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test", resp.Version)
	assert.True(t, resp.Active)
	require.NotNil(t, resp.LastSummary)
	assert.Equal(t, "run-1", resp.LastSummary.RunID)
	assert.Equal(t, 2, resp.LastSummary.MessagesSent)
}

func TestRunEndpoint(t *testing.T) {
	trigger := &fakeTrigger{sum: jobs.Summary{RunID: "manual-1", MessagesSent: 1}}
	h := testServer(t, trigger, nil).Handler()

	rec := doRequest(h, http.MethodPost, "/api/run", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, trigger.calls)

	var sum jobs.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "manual-1", sum.RunID)
}

func TestRunEndpointConflict(t *testing.T) {
	trigger := &fakeTrigger{err: jobs.ErrRunActive}
	h := testServer(t, trigger, nil).Handler()

	rec := doRequest(h, http.MethodPost, "/api/run", testToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conflict", resp.Error)
}

func TestRunEndpointFailureServesSummary(t *testing.T) {
	trigger := &fakeTrigger{
		sum: jobs.Summary{RunID: "manual-2", Err: "discover: tmdb down"},
		err: errors.New("discover: tmdb down"),
	}
	h := testServer(t, trigger, nil).Handler()

	rec := doRequest(h, http.MethodPost, "/api/run", testToken)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var sum jobs.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "discover: tmdb down", sum.Err)
}

func TestRunsEndpointLimits(t *testing.T) {
	lister := &fakeLister{runs: []jobs.Summary{{RunID: "a"}}}
	h := testServer(t, &fakeTrigger{}, lister).Handler()

	rec := doRequest(h, http.MethodGet, "/api/runs", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRunsLimit, lister.gotLimit)

	rec = doRequest(h, http.MethodGet, "/api/runs?limit=5", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, lister.gotLimit)

	rec = doRequest(h, http.MethodGet, "/api/runs?limit=500", testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxRunsLimit, lister.gotLimit, "limit is capped")

	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/api/runs?limit=0", testToken).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/api/runs?limit=abc", testToken).Code)
}

func TestRunsEndpointWithoutArchive(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	rec := doRequest(h, http.MethodGet, "/api/runs", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Runs)
	assert.Empty(t, resp.Runs)
}

func TestHistoryEndpoint(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	rec := doRequest(h, http.MethodGet, "/api/history", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, []int64{3, 5, 12}, resp.IDs)
}

func TestHistoryEndpointCapsIDs(t *testing.T) {
	ids := make([]int64, maxHistoryIDs+500)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	s, err := New(Options{
		Config: func() config.AppConfig {
			return config.AppConfig{Daemon: config.DaemonSettings{APIToken: testToken}}
		},
		Trigger: &fakeTrigger{status: jobs.NewStatus()},
		History: &fakeHistory{ids: ids},
		Health:  health.NewManager("test"),
		Version: "test",
	})
	require.NoError(t, err)

	rec := doRequest(s.Handler(), http.MethodGet, "/api/history", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, maxHistoryIDs+500, resp.Count)
	assert.Len(t, resp.IDs, maxHistoryIDs)
	assert.Equal(t, int64(1), resp.IDs[0])
}

func TestNotFoundIsJSON(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	rec := doRequest(h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

func TestSecurityHeadersPresent(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	rec := doRequest(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	h := testServer(t, &fakeTrigger{}, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "client-supplied-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", rec.Header().Get(headerRequestID))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Config: func() config.AppConfig { return config.AppConfig{} }})
	assert.Error(t, err)
}
