// SPDX-License-Identifier: MIT
package tmdb

import "sort"

// Filter constants. Wire-compatible with the historical behavior of the bot:
// a release is worth notifying about when it was produced in a major market,
// is not one of the excluded genres and runs at least feature length.
var relevantCountries = map[string]struct{}{
	"US": {}, "GB": {}, "CA": {}, "AU": {}, "FR": {},
	"DE": {}, "IT": {}, "ES": {}, "JP": {}, "KR": {},
}

var excludedGenres = map[string]struct{}{
	"Documentary": {},
	"TV Movie":    {},
	"Music":       {},
	"Reality":     {},
}

const minRuntimeMinutes = 60

// relevance reports whether a movie passes the filter. The reason labels the
// first failing rule for metrics.
func relevance(d *movieDetails) (ok bool, reason string) {
	countryOK := false
	for _, c := range d.ProductionCountries {
		if _, hit := relevantCountries[c.ISO]; hit {
			countryOK = true
			break
		}
	}
	if !countryOK {
		return false, "country"
	}

	for _, g := range d.Genres {
		if _, hit := excludedGenres[g.Name]; hit {
			return false, "genre"
		}
	}

	if d.Runtime < minRuntimeMinutes {
		return false, "runtime"
	}
	return true, ""
}

// collectProviders flattens flatrate, rent and buy offers across all regions
// into a deduplicated sorted list.
func collectProviders(wp watchProviders) []string {
	seen := make(map[string]struct{})
	for _, region := range wp.Results {
		for _, group := range [][]provider{region.Flatrate, region.Rent, region.Buy} {
			for _, p := range group {
				if p.Name != "" {
					seen[p.Name] = struct{}{}
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// release builds the exported Release from movie details.
func (d *movieDetails) release() Release {
	countries := make([]string, 0, len(d.ProductionCountries))
	for _, c := range d.ProductionCountries {
		countries = append(countries, c.ISO)
	}
	genres := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		genres = append(genres, g.Name)
	}
	return Release{
		ID:          d.ID,
		Title:       d.Title,
		ReleaseDate: parseReleaseDate(d.ReleaseDate),
		Providers:   collectProviders(d.WatchProviders),
		Countries:   countries,
		Genres:      genres,
		Runtime:     d.Runtime,
	}
}
