// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrMissingLogger is returned when no logger is provided.
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingHandler is returned when the admin API handler is not provided.
	ErrMissingHandler = errors.New("api handler is required")

	// ErrMissingListenAddr is returned when no admin listen address is configured.
	ErrMissingListenAddr = errors.New("listen address is required")

	// ErrMissingManager is returned when an app is created without a manager.
	ErrMissingManager = errors.New("manager is required")

	// ErrMissingScheduler is returned when an app is created without a scheduler.
	ErrMissingScheduler = errors.New("scheduler is required")

	// ErrManagerNotStarted is returned when shutting down a manager that never started.
	ErrManagerNotStarted = errors.New("manager not started")
)
