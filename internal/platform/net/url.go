// SPDX-License-Identifier: MIT

package net

import (
	"net/url"
	"strings"
)

// SanitizeURL strips credentials from a URL so it can be logged. Userinfo and
// the query string are removed (TMDB carries api_key as a query parameter) and
// a Telegram bot token path segment is masked.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid-url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return redactBotToken(u.String())
}

// redactBotToken masks the token in Telegram URLs of the form
// .../bot<token>/method.
func redactBotToken(s string) string {
	const marker = "/bot"
	start := strings.Index(s, marker)
	if start < 0 {
		return s
	}
	rest := s[start+len(marker):]
	if rest == "" {
		return s
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return s[:start] + marker + "<redacted>" + rest[idx:]
	}
	return s[:start] + marker + "<redacted>"
}
