// SPDX-License-Identifier: MIT
package tmdb

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRelevance(t *testing.T) {
	tests := []struct {
		name       string
		details    movieDetails
		wantOK     bool
		wantReason string
	}{
		{
			name: "relevant feature",
			details: movieDetails{
				Runtime:             105,
				Genres:              []genre{{Name: "Action"}, {Name: "Thriller"}},
				ProductionCountries: []productionCountry{{ISO: "US"}},
			},
			wantOK: true,
		},
		{
			name: "irrelevant country only",
			details: movieDetails{
				Runtime:             105,
				Genres:              []genre{{Name: "Action"}},
				ProductionCountries: []productionCountry{{ISO: "IN"}},
			},
			wantReason: "country",
		},
		{
			name: "mixed countries pass",
			details: movieDetails{
				Runtime:             105,
				Genres:              []genre{{Name: "Action"}},
				ProductionCountries: []productionCountry{{ISO: "IN"}, {ISO: "GB"}},
			},
			wantOK: true,
		},
		{
			name: "excluded genre",
			details: movieDetails{
				Runtime:             105,
				Genres:              []genre{{Name: "Drama"}, {Name: "Documentary"}},
				ProductionCountries: []productionCountry{{ISO: "DE"}},
			},
			wantReason: "genre",
		},
		{
			name: "tv movie excluded",
			details: movieDetails{
				Runtime:             105,
				Genres:              []genre{{Name: "TV Movie"}},
				ProductionCountries: []productionCountry{{ISO: "US"}},
			},
			wantReason: "genre",
		},
		{
			name: "too short",
			details: movieDetails{
				Runtime:             59,
				Genres:              []genre{{Name: "Action"}},
				ProductionCountries: []productionCountry{{ISO: "JP"}},
			},
			wantReason: "runtime",
		},
		{
			name: "exactly sixty minutes",
			details: movieDetails{
				Runtime:             60,
				Genres:              []genre{{Name: "Action"}},
				ProductionCountries: []productionCountry{{ISO: "KR"}},
			},
			wantOK: true,
		},
		{
			name: "no countries",
			details: movieDetails{
				Runtime: 105,
				Genres:  []genre{{Name: "Action"}},
			},
			wantReason: "country",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := relevance(&tt.details)
			if ok != tt.wantOK {
				t.Fatalf("relevance() ok = %v, want %v", ok, tt.wantOK)
			}
			if reason != tt.wantReason {
				t.Fatalf("relevance() reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestCollectProviders(t *testing.T) {
	wp := watchProviders{
		Results: map[string]regionProviders{
			"US": {
				Flatrate: []provider{{Name: "Netflix"}},
				Rent:     []provider{{Name: "Apple TV"}},
				Buy:      []provider{{Name: "Apple TV"}, {Name: "Amazon Video"}},
			},
			"DE": {
				Flatrate: []provider{{Name: "Netflix"}, {Name: "WOW"}},
			},
		},
	}

	got := collectProviders(wp)
	want := []string{"Amazon Video", "Apple TV", "Netflix", "WOW"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("provider mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectProvidersEmpty(t *testing.T) {
	if got := collectProviders(watchProviders{}); got != nil {
		t.Fatalf("expected nil for no providers, got %v", got)
	}
}

func TestParseReleaseDate(t *testing.T) {
	if got := parseReleaseDate("2026-08-24"); !got.Equal(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", got)
	}
	if got := parseReleaseDate(""); !got.IsZero() {
		t.Fatalf("empty date should be zero time, got %v", got)
	}
	if got := parseReleaseDate("garbage"); !got.IsZero() {
		t.Fatalf("malformed date should be zero time, got %v", got)
	}
}
