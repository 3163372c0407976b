// SPDX-License-Identifier: MIT

// Package tmdb implements the TMDB API client used for digital release
// discovery. Discovery pages /discover/movie over a release date window,
// skips movies already in the sent history and resolves the survivors via
// /movie/{id} with watch providers attached.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
	"github.com/evangelie19/movie-notifier-bot/internal/platform/httpx"
	mnbnet "github.com/evangelie19/movie-notifier-bot/internal/platform/net"
	"github.com/evangelie19/movie-notifier-bot/internal/resilience"
)

const (
	// DefaultBaseURL is the TMDB v3 API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	digitalReleaseType = "4"
	sortReleaseDate    = "primary_release_date.asc"

	// maxPages caps pagination; TMDB refuses pages beyond 500 anyway.
	maxPages = 500

	maxErrorBody = 4096
)

var defaultRetryDelays = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// Client talks to the TMDB API. Build it per run so the history predicate is
// fresh; share the limiter and breaker across runs via options.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	delays  []time.Duration
	sleep   func(context.Context, time.Duration) error
	history func(int64) bool
	logger  zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root, used by tests and custom endpoints.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient injects the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimiter shares a request pacer across client instances.
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker shares a circuit breaker across client instances.
func WithBreaker(b *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithRetryDelays overrides the 5xx retry ladder.
func WithRetryDelays(delays ...time.Duration) ClientOption {
	return func(c *Client) { c.delays = delays }
}

// WithSleep overrides the retry sleep, used by tests to skip real waiting.
func WithSleep(fn func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// WithHistory sets the predicate for already-sent movie IDs. Matching IDs are
// dropped at the discover stage and never reach the details endpoint.
func WithHistory(contains func(int64) bool) ClientOption {
	return func(c *Client) { c.history = contains }
}

// New creates a TMDB client with a bounded HTTP client, ~4 rps pacing and
// the production retry ladder.
func New(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    httpx.NewClient(httpx.Options{}),
		limiter: rate.NewLimiter(rate.Limit(4), 4),
		delays:  defaultRetryDelays,
		sleep:   sleepContext,
		logger:  log.WithComponent("tmdb"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchReleases pages the discover endpoint over the window and resolves
// every new movie's details. The returned slice is empty, never nil, when
// nothing was found.
func (c *Client) FetchReleases(ctx context.Context, w Window) ([]Release, error) {
	releases := []Release{}
	fetched := 0

	for page := 1; ; page++ {
		var dr discoverResponse
		if err := c.getJSON(ctx, c.discoverURL(w, page), "discover", &dr); err != nil {
			return nil, err
		}
		c.logger.Debug().
			Str(log.FieldEvent, "tmdb.discover.page").
			Int(log.FieldPage, page).
			Int("results", len(dr.Results)).
			Int("total_pages", dr.TotalPages).
			Msg("discover page fetched")

		if len(dr.Results) == 0 {
			break
		}
		fetched += len(dr.Results)

		for _, r := range dr.Results {
			if c.history != nil && c.history(r.ID) {
				metrics.IncDuplicateSkipped()
				continue
			}
			rel, err := c.movieRelease(ctx, r)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					c.logger.Warn().
						Str(log.FieldEvent, "tmdb.details.missing").
						Int64(log.FieldMovieID, r.ID).
						Msg("movie vanished between discover and details")
					continue
				}
				return nil, err
			}
			if rel != nil {
				releases = append(releases, *rel)
			}
		}

		if dr.TotalPages > 0 && page >= dr.TotalPages {
			break
		}
		if page >= maxPages {
			break
		}
	}

	metrics.RecordReleasesFetched(fetched)
	return releases, nil
}

// movieRelease fetches details for one movie and applies the relevance
// filter. A nil release with nil error means the movie was filtered out.
func (c *Client) movieRelease(ctx context.Context, r discoverResult) (*Release, error) {
	var det movieDetails
	if err := c.getJSON(ctx, c.detailsURL(r.ID), "details", &det); err != nil {
		return nil, err
	}
	// Discover occasionally carries fresher fields than details.
	if det.Title == "" {
		det.Title = r.Title
	}
	if det.ReleaseDate == "" {
		det.ReleaseDate = r.ReleaseDate
	}

	if ok, reason := relevance(&det); !ok {
		metrics.IncIrrelevant(reason)
		c.logger.Debug().
			Str(log.FieldEvent, "tmdb.filter.drop").
			Int64(log.FieldMovieID, det.ID).
			Str("reason", reason).
			Msg("release filtered out")
		return nil, nil
	}

	rel := det.release()
	return &rel, nil
}

func (c *Client) discoverURL(w Window, page int) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("with_release_type", digitalReleaseType)
	q.Set("sort_by", sortReleaseDate)
	q.Set("include_adult", "false")
	q.Set("release_date.gte", w.Start.UTC().Truncate(time.Second).Format(time.RFC3339))
	q.Set("release_date.lte", w.End.UTC().Truncate(time.Second).Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	return c.baseURL + "/discover/movie?" + q.Encode()
}

func (c *Client) detailsURL(id int64) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("append_to_response", "watch/providers")
	return c.baseURL + "/movie/" + strconv.FormatInt(id, 10) + "?" + q.Encode()
}

// getJSON performs a GET with retry on 5xx. Each ladder step sleeps the
// configured delay before the next attempt; after the ladder is exhausted the
// call fails with ErrRetryLimit.
func (c *Client) getJSON(ctx context.Context, rawURL, op string, out any) error {
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, rawURL, op, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrServer) {
			return err
		}
		if attempt >= len(c.delays) {
			return &APIError{Sentinel: ErrRetryLimit, Op: op, Err: err}
		}

		delay := c.delays[attempt]
		metrics.IncUpstreamRetry("tmdb", "server_error")
		c.logger.Warn().
			Str(log.FieldEvent, "tmdb.retry.wait").
			Str("op", op).
			Int(log.FieldAttempt, attempt+1).
			Dur("delay", delay).
			Msg("upstream error, backing off")
		if serr := c.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// doOnce performs a single paced, breaker-guarded request.
func (c *Client) doOnce(ctx context.Context, rawURL, op string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.breaker != nil {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.roundTrip(ctx, rawURL, op, out)
		})
	}
	return c.roundTrip(ctx, rawURL, op, out)
}

func (c *Client) roundTrip(ctx context.Context, rawURL, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "movie-notifier-bot")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamRequest("tmdb", 0, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Sentinel: ErrUnavailable, Op: op, Err: err}
	}
	defer res.Body.Close()
	metrics.ObserveUpstreamRequest("tmdb", res.StatusCode, time.Since(start))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &APIError{
			Sentinel: sentinelFor(res.StatusCode),
			Op:       op,
			Status:   res.StatusCode,
			Body:     string(body),
		}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{
			Sentinel: ErrBadResponse,
			Op:       op,
			Status:   res.StatusCode,
			Err:      fmt.Errorf("decode %s: %w", mnbnet.SanitizeURL(rawURL), err),
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
