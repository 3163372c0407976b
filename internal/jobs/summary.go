// SPDX-License-Identifier: MIT

// Package jobs runs the notification pipeline: restore history, discover
// digital releases, build per-chat digests, dispatch them and append the
// dispatched IDs back to the history.
package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Summary is the record of one pipeline run. It feeds the admin API, the
// run archive and the CI job summary.
type Summary struct {
	RunID           string    `json:"run_id"`
	Trigger         string    `json:"trigger,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Fetched         int       `json:"fetched"`
	NewReleases     int       `json:"new_releases"`
	Duplicates      int       `json:"duplicates"`
	MessagesSent    int       `json:"messages_sent"`
	HistoryAppended int       `json:"history_appended"`
	Err             string    `json:"error,omitempty"`
}

// Duration reports how long the run took.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Outcome classifies the run: success, partial (failed after some messages
// or history writes landed) or failure.
func (s Summary) Outcome() string {
	switch {
	case s.Err == "":
		return "success"
	case s.MessagesSent > 0 || s.HistoryAppended > 0:
		return "partial"
	default:
		return "failure"
	}
}

// RenderMarkdown produces the GitHub Actions job-summary table.
func (s Summary) RenderMarkdown() string {
	var b strings.Builder
	b.WriteString("### Movie notification run\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Run ID | `%s` |\n", s.RunID)
	fmt.Fprintf(&b, "| Started | %s |\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Duration | %s |\n", s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "| Fetched | %d |\n", s.Fetched)
	fmt.Fprintf(&b, "| New releases | %d |\n", s.NewReleases)
	fmt.Fprintf(&b, "| Duplicates | %d |\n", s.Duplicates)
	fmt.Fprintf(&b, "| Messages sent | %d |\n", s.MessagesSent)
	fmt.Fprintf(&b, "| History appended | %d |\n", s.HistoryAppended)
	if s.Err != "" {
		fmt.Fprintf(&b, "\n> Run failed: %s\n", s.Err)
	}
	return b.String()
}
