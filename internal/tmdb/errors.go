// SPDX-License-Identifier: MIT
package tmdb

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound     = errors.New("tmdb: resource not found")
	ErrUnauthorized = errors.New("tmdb: invalid api key")
	ErrRetryLimit   = errors.New("tmdb: retry limit exceeded")
	ErrServer       = errors.New("tmdb: upstream server error (5xx)")
	ErrBadResponse  = errors.New("tmdb: malformed response")
	ErrUnavailable  = errors.New("tmdb: transport failure")
)

// APIError wraps a sentinel with request context.
type APIError struct {
	Sentinel error
	Op       string
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("tmdb: %s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// sentinelFor maps an HTTP status to the matching sentinel.
func sentinelFor(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 404:
		return ErrNotFound
	case status >= 500:
		return ErrServer
	default:
		return ErrBadResponse
	}
}
