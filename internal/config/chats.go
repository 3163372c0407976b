// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChatConfig routes digest messages to a Telegram chat. A chat with no
// locales receives releases for every locale.
type ChatConfig struct {
	ChatID  int64    `yaml:"chatId"`
	Locales []string `yaml:"locales,omitempty"`
}

// MatchesLocale reports whether the chat subscribes to the given locale.
func (c ChatConfig) MatchesLocale(locale string) bool {
	if len(c.Locales) == 0 {
		return true
	}
	for _, l := range c.Locales {
		if strings.EqualFold(l, locale) {
			return true
		}
	}
	return false
}

// SingleGlobalChat builds the one-chat routing used when only
// TELEGRAM_CHAT_ID is configured.
func SingleGlobalChat(chatID int64) []ChatConfig {
	return []ChatConfig{{ChatID: chatID}}
}

type chatsFile struct {
	Chats []ChatConfig `yaml:"chats"`
}

// LoadChats reads chat routing from a YAML file. Parsing is strict: unknown
// keys and trailing documents are errors.
func LoadChats(path string) ([]ChatConfig, error) {
	path = filepath.Clean(path)
	// #nosec G304 -- the chats file path is provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chats file: %w", err)
	}

	var f chatsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("strict chats parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("chats file contains multiple documents or trailing content")
	}
	return f.Chats, nil
}
