// SPDX-License-Identifier: MIT
package telegram

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnknownChat  = errors.New("telegram: chat not in allowlist")
	ErrRetryLimit   = errors.New("telegram: retry limit exceeded")
	ErrEmptyMessage = errors.New("telegram: empty message")
	ErrRateLimited  = errors.New("telegram: rate limited (429)")
	ErrServer       = errors.New("telegram: upstream server error (5xx)")
	ErrClient       = errors.New("telegram: request rejected (4xx)")
	ErrUnavailable  = errors.New("telegram: transport failure")
)

// DispatchError wraps a sentinel with delivery context. The bot token never
// appears in the message.
type DispatchError struct {
	Sentinel   error
	Op         string
	ChatID     int64
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("telegram: %s: chat %d: %v", e.Op, e.ChatID, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s, retry after %s", msg, e.RetryAfter)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Sentinel
}
