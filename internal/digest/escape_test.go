// SPDX-License-Identifier: MIT
package digest

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Dune Part Three", want: "Dune Part Three"},
		{name: "date", in: "2026-08-24", want: `2026\-08\-24`},
		{name: "parens and dot", in: "Movie (2026).", want: `Movie \(2026\)\.`},
		{name: "brackets", in: "[Netflix, WOW]", want: `\[Netflix, WOW\]`},
		{name: "underscore and star", in: "_bold_ *it*", want: `\_bold\_ \*it\*`},
		{name: "backslash", in: `a\b`, want: `a\\b`},
		{name: "full set", in: "_*[]()~`>#+-=|{}.!", want: "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
		{name: "cyrillic untouched", in: "Новые цифровые релизы:", want: "Новые цифровые релизы:"},
		{name: "emoji and em dash untouched", in: "🔥 Title — tail", want: "🔥 Title — tail"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeMarkdownV2(tt.in); got != tt.want {
				t.Fatalf("EscapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	// "e" plus combining acute must collapse to the single precomposed rune.
	decomposed := "Amelié"
	want := "Amelié"
	if got := NormalizeTitle(decomposed); got != want {
		t.Fatalf("NormalizeTitle(%q) = %q, want %q", decomposed, got, want)
	}

	if got := NormalizeTitle("  spaced  "); got != "spaced" {
		t.Fatalf("expected trimmed title, got %q", got)
	}
}
