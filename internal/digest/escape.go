// SPDX-License-Identifier: MIT

// Package digest renders release digests as Telegram MarkdownV2 messages.
// Rendering is pure: same releases and chats in, same messages out.
package digest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// markdownV2Specials is the full MarkdownV2 escape set. Every one of these
// must be backslash-escaped in message text or the Bot API rejects the send.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 escapes all MarkdownV2 special characters in s.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if r < 128 && strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeTitle trims and NFC-normalizes a movie title so that visually
// identical titles compare and sort identically.
func NormalizeTitle(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
