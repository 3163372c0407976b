// SPDX-License-Identifier: MIT
package digest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/telegram"
	"github.com/evangelie19/movie-notifier-bot/internal/tmdb"
)

const (
	// HeaderNewReleases opens every non-empty digest.
	HeaderNewReleases = "Новые цифровые релизы:"

	// NoticeNoReleases is sent when a run found nothing new.
	NoticeNoReleases = "Новых цифровых релизов нет."

	// DefaultMessageLimit is the Bot API text limit. Lengths are counted in
	// bytes, which is conservative for the API's UTF-16 accounting.
	DefaultMessageLimit = 4096
)

// GroupReleasesByChat routes releases to chats by locale and sorts each
// chat's list by release date descending, then title ascending. A chat with
// no locales receives everything; otherwise a release matches when one of its
// production countries matches a chat locale.
func GroupReleasesByChat(chats []config.ChatConfig, releases []tmdb.Release) map[int64][]tmdb.Release {
	out := make(map[int64][]tmdb.Release, len(chats))
	for _, chat := range chats {
		var matched []tmdb.Release
		for _, rel := range releases {
			if chatWantsRelease(chat, rel) {
				matched = append(matched, rel)
			}
		}
		sortReleases(matched)
		out[chat.ChatID] = matched
	}
	return out
}

func chatWantsRelease(chat config.ChatConfig, rel tmdb.Release) bool {
	if len(chat.Locales) == 0 {
		return true
	}
	for _, country := range rel.Countries {
		if chat.MatchesLocale(country) {
			return true
		}
	}
	return false
}

func sortReleases(rels []tmdb.Release) {
	sort.SliceStable(rels, func(i, j int) bool {
		if !rels[i].ReleaseDate.Equal(rels[j].ReleaseDate) {
			return rels[i].ReleaseDate.After(rels[j].ReleaseDate)
		}
		return NormalizeTitle(rels[i].Title) < NormalizeTitle(rels[j].Title)
	})
}

// BuildMessages renders the digest for every chat that has matching
// releases. Chats with no matches produce no message; BuildEmptyMessages
// covers the nothing-new case.
func BuildMessages(chats []config.ChatConfig, releases []tmdb.Release) []telegram.Message {
	grouped := GroupReleasesByChat(chats, releases)

	var out []telegram.Message
	for _, chat := range chats {
		rels := grouped[chat.ChatID]
		if len(rels) == 0 {
			continue
		}
		lines := make([]string, 0, len(rels))
		for _, rel := range rels {
			lines = append(lines, formatLine(rel))
		}
		out = append(out, ChunkLines(chat.ChatID, EscapeMarkdownV2(HeaderNewReleases), lines, DefaultMessageLimit)...)
	}
	return out
}

// BuildEmptyMessages renders the nothing-new notice for every chat.
func BuildEmptyMessages(chats []config.ChatConfig) []telegram.Message {
	out := make([]telegram.Message, 0, len(chats))
	for _, chat := range chats {
		out = append(out, telegram.Message{
			ChatID:                chat.ChatID,
			Text:                  EscapeMarkdownV2(NoticeNoReleases),
			ParseMode:             telegram.ParseModeMarkdownV2,
			DisableWebPagePreview: true,
		})
	}
	return out
}

// formatLine renders one release as an escaped digest line. A zero release
// date drops the date part instead of printing a placeholder.
func formatLine(rel tmdb.Release) string {
	var b strings.Builder
	b.WriteString("🔥 ")
	b.WriteString(NormalizeTitle(rel.Title))
	if !rel.ReleaseDate.IsZero() {
		b.WriteString(" — ")
		b.WriteString(rel.ReleaseDate.Format("2006-01-02"))
	}
	if len(rel.Providers) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(rel.Providers, ", "))
	}
	return EscapeMarkdownV2(b.String())
}

// ChunkLines packs lines into messages of at most maxLen bytes. The header
// leads the first chunk; lines are never split, and a single line longer
// than maxLen becomes its own chunk.
func ChunkLines(chatID int64, header string, lines []string, maxLen int) []telegram.Message {
	if maxLen <= 0 {
		maxLen = DefaultMessageLimit
	}

	var msgs []telegram.Message
	flush := func(text string) {
		if text == "" {
			return
		}
		msgs = append(msgs, telegram.Message{
			ChatID:                chatID,
			Text:                  text,
			ParseMode:             telegram.ParseModeMarkdownV2,
			DisableWebPagePreview: true,
		})
	}

	current := header
	for _, line := range lines {
		candidate := line
		if current != "" {
			candidate = current + "\n" + line
		}
		if len(candidate) <= maxLen {
			current = candidate
			continue
		}
		flush(current)
		current = line
	}
	flush(current)
	return msgs
}
