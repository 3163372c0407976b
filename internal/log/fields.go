// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldChatID    = "chat_id"
	FieldMovieID   = "movie_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOutcome   = "outcome"
	FieldAttempt   = "attempt"

	// Upstream fields
	FieldStatus = "status"
	FieldPage   = "page"

	// State fields
	FieldPath     = "path"
	FieldBackend  = "backend"
	FieldArtifact = "artifact"
)
