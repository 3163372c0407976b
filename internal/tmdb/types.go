// SPDX-License-Identifier: MIT
package tmdb

import "time"

// Release is a digital movie release that passed the relevance filter.
type Release struct {
	ID          int64
	Title       string
	ReleaseDate time.Time
	Providers   []string
	Countries   []string
	Genres      []string
	Runtime     int
}

// Window bounds a discovery query on release_date.
type Window struct {
	Start time.Time
	End   time.Time
}

// Wire types. Field names follow the upstream JSON exactly.

type discoverResponse struct {
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
	Results    []discoverResult `json:"results"`
}

type discoverResult struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

type movieDetails struct {
	ID                  int64               `json:"id"`
	Title               string              `json:"title"`
	ReleaseDate         string              `json:"release_date"`
	Runtime             int                 `json:"runtime"`
	Genres              []genre             `json:"genres"`
	ProductionCountries []productionCountry `json:"production_countries"`
	WatchProviders      watchProviders      `json:"watch/providers"`
}

type genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type productionCountry struct {
	ISO  string `json:"iso_3166_1"`
	Name string `json:"name"`
}

type watchProviders struct {
	Results map[string]regionProviders `json:"results"`
}

type regionProviders struct {
	Flatrate []provider `json:"flatrate"`
	Rent     []provider `json:"rent"`
	Buy      []provider `json:"buy"`
}

type provider struct {
	Name string `json:"provider_name"`
}

// parseReleaseDate parses the upstream YYYY-MM-DD date. An empty or malformed
// date yields the zero time; the release stays eligible and sorts last.
func parseReleaseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
