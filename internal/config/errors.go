// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEnv indicates a required environment variable is not set.
	ErrMissingEnv = errors.New("missing environment variable")
	// ErrInvalidRepository indicates GITHUB_REPOSITORY is not "owner/repo".
	ErrInvalidRepository = errors.New("invalid repository format, expected owner/repo")
	// ErrInvalidChatID indicates TELEGRAM_CHAT_ID is not a valid integer.
	ErrInvalidChatID = errors.New("invalid chat id")
	// ErrNoChats indicates no chat routing is configured.
	ErrNoChats = errors.New("no chats configured")
)

// MissingEnv wraps ErrMissingEnv with the variable name.
func MissingEnv(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingEnv, name)
}
