// SPDX-License-Identifier: MIT
package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized marks 401/403 responses, usually a bad or expired token.
	ErrUnauthorized = errors.New("github artifacts request unauthorized")
	// ErrBadResponse marks responses that could not be decoded or unzipped.
	ErrBadResponse = errors.New("unexpected github artifacts response")
	// ErrServer marks 5xx responses.
	ErrServer = errors.New("github artifacts server error")
	// ErrUnavailable marks transport failures before any response arrived.
	ErrUnavailable = errors.New("github artifacts api unreachable")
)

// APIError wraps a failed Artifacts API call with enough context to log.
// The token never appears in the message.
type APIError struct {
	Sentinel error
	Op       string
	Status   int
	Body     string
	Err      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("github artifacts: %s: %v", e.Op, e.Sentinel)
	if e.Status != 0 {
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

func (e *APIError) Unwrap() error { return e.Sentinel }

func sentinelFor(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status >= 500:
		return ErrServer
	default:
		return ErrBadResponse
	}
}
