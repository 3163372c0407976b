// SPDX-License-Identifier: MIT

// Package health backs the daemon's liveness and readiness probes with
// component-level checks on the run status and the history state.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/resilience"
)

// Status classifies a component or the process as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one component's verdict.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload. Ready turns false only on an
// unhealthy component; degraded keeps serving.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is a named component check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs the registered checks and serves the probe endpoints.
type Manager struct {
	version  string
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version}
}

func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return checks, overall
}

// Health is the liveness check. The process being up is enough for 200;
// verbose adds the component results without changing the verdict to the
// probe (liveness must not restart the pod over a flaky upstream).
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		checks, overall := m.runChecks(ctx)
		resp.Checks = checks
		resp.Status = overall
	}
	return resp
}

// Ready is the readiness check. Any unhealthy component flips Ready to
// false; no registered checkers means ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}

	checks, overall := m.runChecks(ctx)
	resp.Checks = checks
	resp.Status = overall
	if overall == StatusUnhealthy {
		resp.Ready = false
	}
	return resp
}

// ServeHealth answers /healthz. Always 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "health.encode_error").
			Msg("failed to encode health response")
	}
}

// ServeReady answers /readyz: 200 when ready, 503 otherwise.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "readiness.encode_error").
			Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str(log.FieldStatus, string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// LastRunChecker judges the run pipeline from the status tracker.
type LastRunChecker struct {
	status           *jobs.Status
	failureThreshold int
	staleAfter       time.Duration
}

// NewLastRunChecker builds the checker. failureThreshold is how many
// consecutive failed runs flip the verdict to unhealthy; staleAfter is how
// long after the last finished run the daemon counts as stalled.
func NewLastRunChecker(status *jobs.Status, failureThreshold int, staleAfter time.Duration) *LastRunChecker {
	if failureThreshold < 1 {
		failureThreshold = 3
	}
	return &LastRunChecker{
		status:           status,
		failureThreshold: failureThreshold,
		staleAfter:       staleAfter,
	}
}

func (c *LastRunChecker) Name() string { return "last_run" }

func (c *LastRunChecker) Check(ctx context.Context) CheckResult {
	view := c.status.View()

	// The first scheduled run fires right after startup, so a missing run
	// is a warming-up signal, not a dead daemon.
	if view.LastRun.IsZero() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no run completed yet",
		}
	}

	if view.ConsecutiveFailures >= c.failureThreshold {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   view.LastError,
			Message: fmt.Sprintf("%d consecutive failed runs", view.ConsecutiveFailures),
		}
	}
	if view.LastError != "" {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   view.LastError,
			Message: "last run failed",
		}
	}

	if c.staleAfter > 0 {
		if age := time.Since(view.LastRun); age > c.staleAfter {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("last run finished %s ago", age.Round(time.Minute)),
			}
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "last run successful",
	}
}

// HistoryChecker reports on the sent-ID state. For the file backend it
// stats the state file; for sqlite and redis the in-memory mirror size is
// the signal.
type HistoryChecker struct {
	backend string
	path    string
	size    func() int
}

func NewHistoryChecker(cfg config.HistorySettings, size func() int) *HistoryChecker {
	return &HistoryChecker{
		backend: cfg.Backend,
		path:    cfg.Path,
		size:    size,
	}
}

func (c *HistoryChecker) Name() string { return "history" }

func (c *HistoryChecker) Check(ctx context.Context) CheckResult {
	if c.backend == "" || c.backend == "file" {
		info, err := os.Stat(c.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// The file appears with the first persisted run.
			return CheckResult{
				Status:  StatusDegraded,
				Message: "no history file yet",
			}
		case err != nil:
			return CheckResult{
				Status: StatusUnhealthy,
				Error:  err.Error(),
			}
		case info.IsDir():
			return CheckResult{
				Status: StatusUnhealthy,
				Error:  "history path is a directory",
			}
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d sent IDs tracked", c.size()),
	}
}

// ChatsChecker flags a configuration that routes digests nowhere.
type ChatsChecker struct {
	count func() int
}

func NewChatsChecker(count func() int) *ChatsChecker {
	return &ChatsChecker{count: count}
}

func (c *ChatsChecker) Name() string { return "chats" }

func (c *ChatsChecker) Check(ctx context.Context) CheckResult {
	n := c.count()
	if n == 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no chats configured",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d chats configured", n),
	}
}

// UpstreamChecker mirrors a circuit breaker. An open breaker degrades the
// probe as an early warning; sustained run failures escalate through the
// last_run check instead.
type UpstreamChecker struct {
	upstream string
	state    func() resilience.State
}

func NewUpstreamChecker(upstream string, state func() resilience.State) *UpstreamChecker {
	return &UpstreamChecker{upstream: upstream, state: state}
}

func (c *UpstreamChecker) Name() string { return "upstream_" + c.upstream }

func (c *UpstreamChecker) Check(ctx context.Context) CheckResult {
	switch c.state() {
	case resilience.StateOpen:
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%s circuit open, requests are being rejected", c.upstream),
		}
	case resilience.StateHalfOpen:
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%s circuit half-open, probing", c.upstream),
		}
	default:
		return CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%s circuit closed", c.upstream),
		}
	}
}
