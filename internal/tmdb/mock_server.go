// SPDX-License-Identifier: MIT
package tmdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockMovie seeds the mock API with one movie.
type MockMovie struct {
	ID          int64
	Title       string
	ReleaseDate string
	Runtime     int
	Genres      []string
	Countries   []string
	Providers   map[string][]string // region -> flatrate provider names
}

// MockServer is a configurable TMDB test double. It serves scripted discover
// pages and per-movie details, supports failure injection and counts calls
// per endpoint.
type MockServer struct {
	*httptest.Server
	mu       sync.Mutex
	movies   []MockMovie
	pageSize int
	failures map[string]int
	calls    map[string]int
}

// NewMockServer starts an empty mock. Callers seed it with AddMovie.
func NewMockServer() *MockServer {
	mock := &MockServer{
		pageSize: 20,
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/discover/movie", mock.handleDiscover)
	mux.HandleFunc("/movie/", mock.handleDetails)
	mock.Server = httptest.NewServer(mux)
	return mock
}

// AddMovie appends a movie to the discover result set.
func (m *MockServer) AddMovie(mv MockMovie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movies = append(m.movies, mv)
}

// SetPageSize controls how many results a discover page carries.
func (m *MockServer) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// FailNext makes the next count requests to an endpoint ("discover" or
// "details") return HTTP 500.
func (m *MockServer) FailNext(endpoint string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[endpoint] = count
}

// Calls reports how many requests an endpoint has served, failures included.
func (m *MockServer) Calls(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[endpoint]
}

func (m *MockServer) shouldFail(endpoint string) bool {
	if m.failures[endpoint] > 0 {
		m.failures[endpoint]--
		return true
	}
	return false
}

func (m *MockServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.calls["discover"]++
	if m.shouldFail("discover") {
		m.mu.Unlock()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size := m.pageSize
	total := (len(m.movies) + size - 1) / size

	start := (page - 1) * size
	end := start + size
	if start > len(m.movies) {
		start = len(m.movies)
	}
	if end > len(m.movies) {
		end = len(m.movies)
	}

	resp := discoverResponse{
		Page:       page,
		TotalPages: total,
		Results:    make([]discoverResult, 0, end-start),
	}
	for _, mv := range m.movies[start:end] {
		resp.Results = append(resp.Results, discoverResult{
			ID:          mv.ID,
			Title:       mv.Title,
			ReleaseDate: mv.ReleaseDate,
		})
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.calls["details"]++
	if m.shouldFail("details") {
		m.mu.Unlock()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/movie/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		m.mu.Unlock()
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var found *MockMovie
	for i := range m.movies {
		if m.movies[i].ID == id {
			found = &m.movies[i]
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	det := movieDetails{
		ID:          found.ID,
		Title:       found.Title,
		ReleaseDate: found.ReleaseDate,
		Runtime:     found.Runtime,
	}
	for _, g := range found.Genres {
		det.Genres = append(det.Genres, genre{Name: g})
	}
	for _, c := range found.Countries {
		det.ProductionCountries = append(det.ProductionCountries, productionCountry{ISO: c})
	}
	if len(found.Providers) > 0 {
		det.WatchProviders.Results = make(map[string]regionProviders, len(found.Providers))
		for region, names := range found.Providers {
			rp := regionProviders{}
			for _, name := range names {
				rp.Flatrate = append(rp.Flatrate, provider{Name: name})
			}
			det.WatchProviders.Results[region] = rp
		}
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(det)
}
