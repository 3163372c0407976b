// SPDX-License-Identifier: MIT

// Package api serves the daemon's admin surface: probes, run status, a
// manual run trigger and the archived run history.
package api

import (
	"context"
	"errors"
	"time"

	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/health"
	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
)

const (
	rateLimitRequests = 120
	rateLimitWindow   = time.Minute
)

// RunTrigger starts pipeline runs and exposes their state. *jobs.Runner
// satisfies it.
type RunTrigger interface {
	RunManual(ctx context.Context) (jobs.Summary, error)
	Active() bool
	Status() *jobs.Status
}

// RunLister serves archived run summaries. *jobs.Archive satisfies it.
type RunLister interface {
	List(limit int) ([]jobs.Summary, error)
}

// HistoryView is the read side of the sent-ID store.
type HistoryView interface {
	Snapshot() []int64
}

// Options wires a Server. Config, Trigger, History and Health are
// required; Runs may be nil when no archive is open.
type Options struct {
	Config  func() config.AppConfig
	Trigger RunTrigger
	Runs    RunLister
	History HistoryView
	Health  *health.Manager
	Version string
}

// Server is the admin API. It carries no listener; the daemon owns the
// http.Server around Handler.
type Server struct {
	cfg     func() config.AppConfig
	trigger RunTrigger
	runs    RunLister
	history HistoryView
	health  *health.Manager
	version string
}

func New(opts Options) (*Server, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("api: config source is required")
	case opts.Trigger == nil:
		return nil, errors.New("api: run trigger is required")
	case opts.History == nil:
		return nil, errors.New("api: history view is required")
	case opts.Health == nil:
		return nil, errors.New("api: health manager is required")
	}

	return &Server{
		cfg:     opts.Config,
		trigger: opts.Trigger,
		runs:    opts.Runs,
		history: opts.History,
		health:  opts.Health,
		version: opts.Version,
	}, nil
}

// Handler builds the routed admin surface with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(Metrics())
	r.Use(Tracing("movie-notifier-api"))
	r.Use(RequestLogger)
	r.Use(RateLimit(rateLimitRequests, rateLimitWindow))

	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(methodNotAllowedHandler)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/status", s.handleStatus)
		r.Post("/run", s.handleRun)
		r.Get("/runs", s.handleRuns)
		r.Get("/history", s.handleHistory)
	})

	return r
}
