// SPDX-License-Identifier: MIT
package jobs

import (
	"sync"
	"time"
)

// Status tracks run outcomes for readiness checks and the admin API.
type Status struct {
	mu                  sync.RWMutex
	lastRun             time.Time
	lastSummary         *Summary
	lastError           string
	consecutiveFailures int
}

// NewStatus returns an empty tracker.
func NewStatus() *Status { return &Status{} }

// Record stores the finished run. Any non-empty Summary.Err counts as a
// failure for the consecutive-failure streak.
func (s *Status) Record(sum Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRun = sum.FinishedAt
	copied := sum
	s.lastSummary = &copied
	s.lastError = sum.Err
	if sum.Err != "" {
		s.consecutiveFailures++
	} else {
		s.consecutiveFailures = 0
	}
}

// StatusView is the serializable snapshot served by /api/status.
type StatusView struct {
	LastRun             time.Time `json:"last_run"`
	LastSummary         *Summary  `json:"last_summary,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// View returns a copy of the current state.
func (s *Status) View() StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := StatusView{
		LastRun:             s.lastRun,
		LastError:           s.lastError,
		ConsecutiveFailures: s.consecutiveFailures,
	}
	if s.lastSummary != nil {
		copied := *s.lastSummary
		view.LastSummary = &copied
	}
	return view
}

// LastRun reports when the last run finished, zero before the first run.
func (s *Status) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// ConsecutiveFailures reports the current failure streak.
func (s *Status) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures
}
