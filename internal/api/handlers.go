// SPDX-License-Identifier: MIT
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100

	// maxHistoryIDs caps the ids list; count still reports the full size.
	maxHistoryIDs = 1000

	// A manual run keeps going when the client disconnects; dropping a
	// half-dispatched digest would be worse than an orphaned request.
	manualRunTimeout = 5 * time.Minute
)

type statusResponse struct {
	Version string `json:"version"`
	Active  bool   `json:"active"`
	jobs.StatusView
}

type runsResponse struct {
	Runs []jobs.Summary `json:"runs"`
}

type historyResponse struct {
	Count int     `json:"count"`
	IDs   []int64 `json:"ids"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Version:    s.version,
		Active:     s.trigger.Active(),
		StatusView: s.trigger.Status().View(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	ctx, cancel := context.WithTimeout(context.Background(), manualRunTimeout)
	defer cancel()

	sum, err := s.trigger.RunManual(ctx)
	if errors.Is(err, jobs.ErrRunActive) {
		logger.Warn().
			Str(log.FieldEvent, "api.run.conflict").
			Msg("run already in progress")
		w.Header().Set("Retry-After", "30")
		writeErrorResponse(w, http.StatusConflict, "conflict", "a notification run is already active")
		return
	}
	if err != nil {
		// The summary carries the failure in its error field; upstream
		// errors are sanitized at the client layer, so serving it to an
		// authenticated operator is safe.
		logger.Error().Err(err).
			Str(log.FieldEvent, "api.run.failed").
			Msg("manual run failed")
		writeJSON(w, http.StatusInternalServerError, sum)
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	if s.runs == nil {
		writeJSON(w, http.StatusOK, runsResponse{Runs: []jobs.Summary{}})
		return
	}

	list, err := s.runs.List(limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldEvent, "api.runs.list_failed").
			Msg("could not read run archive")
		writeErrorResponse(w, http.StatusInternalServerError, "archive_unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: list})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ids := s.history.Snapshot()
	total := len(ids)
	if total > maxHistoryIDs {
		ids = ids[:maxHistoryIDs]
	}
	writeJSON(w, http.StatusOK, historyResponse{Count: total, IDs: ids})
}
