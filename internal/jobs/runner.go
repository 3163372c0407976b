// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/digest"
	"github.com/evangelie19/movie-notifier-bot/internal/history"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/metrics"
	"github.com/evangelie19/movie-notifier-bot/internal/telegram"
	"github.com/evangelie19/movie-notifier-bot/internal/telemetry"
	"github.com/evangelie19/movie-notifier-bot/internal/tmdb"
)

// ErrRunActive is returned when a run is triggered while one is in flight.
var ErrRunActive = errors.New("a notification run is already active")

// persistTimeout bounds the detached history write after dispatch.
const persistTimeout = 10 * time.Second

// ReleaseProvider yields the digital releases for a window. *tmdb.Client
// satisfies it.
type ReleaseProvider interface {
	FetchReleases(ctx context.Context, window tmdb.Window) ([]tmdb.Release, error)
}

// MessageDispatcher delivers built messages. *telegram.Dispatcher satisfies
// it. The count reports how many messages went out before any error.
type MessageDispatcher interface {
	SendBatch(ctx context.Context, messages []telegram.Message) (int, error)
}

// RunnerConfig wires a Runner. Provider, Dispatcher, Store, Chats and
// Window are required.
type RunnerConfig struct {
	Provider   ReleaseProvider
	Dispatcher MessageDispatcher
	Store      history.Store
	// Chats is read at the start of every run so daemon reloads take
	// effect without rebuilding the Runner.
	Chats  func() []config.ChatConfig
	Window func(now time.Time) tmdb.Window
	// Trigger labels summaries: "cli", "schedule" or "manual".
	Trigger string
	Status  *Status
	Archive *Archive
	Now     func() time.Time
}

// Runner executes the notification pipeline. Runs are serialized; a second
// trigger while one is active fails fast with ErrRunActive.
type Runner struct {
	provider   ReleaseProvider
	dispatcher MessageDispatcher
	store      history.Store
	chats      func() []config.ChatConfig
	window     func(time.Time) tmdb.Window
	trigger    string
	status     *Status
	archive    *Archive
	now        func() time.Time
	running    atomic.Bool
}

// NewRunner validates the wiring and builds a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	switch {
	case cfg.Provider == nil:
		return nil, errors.New("jobs: release provider is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("jobs: message dispatcher is required")
	case cfg.Store == nil:
		return nil, errors.New("jobs: history store is required")
	case cfg.Chats == nil:
		return nil, errors.New("jobs: chat source is required")
	case cfg.Window == nil:
		return nil, errors.New("jobs: window source is required")
	}

	r := &Runner{
		provider:   cfg.Provider,
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		chats:      cfg.Chats,
		window:     cfg.Window,
		trigger:    cfg.Trigger,
		status:     cfg.Status,
		archive:    cfg.Archive,
		now:        cfg.Now,
	}
	if r.status == nil {
		r.status = NewStatus()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Status exposes the tracker for readiness checks and the admin API.
func (r *Runner) Status() *Status { return r.status }

// Active reports whether a run is currently in flight.
func (r *Runner) Active() bool { return r.running.Load() }

// Run executes one pipeline pass with the configured trigger label. The
// returned Summary is valid even when err is non-nil; its Err field
// carries the same failure.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	return r.run(ctx, r.trigger)
}

// RunManual executes one pass labeled as operator-triggered.
func (r *Runner) RunManual(ctx context.Context) (Summary, error) {
	return r.run(ctx, "manual")
}

func (r *Runner) run(ctx context.Context, trigger string) (Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunActive
	}
	defer r.running.Store(false)

	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)

	ctx, span := otel.Tracer("mnb.run").Start(ctx, "notification.run")
	defer span.End()
	span.SetAttributes(telemetry.RunAttributes(runID, trigger)...)

	// The run logger carries run_id plus, when tracing is live, the trace
	// and span IDs so log lines join up with the exported trace.
	logger := log.WithContext(ctx, log.WithTraceContext(ctx).With().Str(log.FieldComponent, "jobs").Logger())

	sum := Summary{RunID: runID, Trigger: trigger, StartedAt: r.now()}
	logger.Info().
		Str(log.FieldEvent, "run.start").
		Str("trigger", trigger).
		Msg("starting notification run")

	if _, err := r.store.Restore(ctx); err != nil {
		metrics.IncRunFailure("restore")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "run.restore.failed").
			Msg("history restore failed, continuing with local state")
	}

	window := r.window(sum.StartedAt)
	releases, err := r.provider.FetchReleases(ctx, window)
	if err != nil {
		metrics.IncRunFailure("discover")
		return r.fail(ctx, logger, sum, "discover", err)
	}

	newReleases, duplicates := splitByHistory(releases, r.store.Contains)
	sum.Fetched = len(releases)
	sum.Duplicates = duplicates
	sum.NewReleases = len(newReleases)
	metrics.RecordReleasesNew(len(newReleases))
	logger.Info().
		Str(log.FieldEvent, "run.filter").
		Int("fetched", sum.Fetched).
		Int("new", sum.NewReleases).
		Int("duplicates", sum.Duplicates).
		Msg("releases filtered against history")

	chats := r.chats()
	if len(newReleases) == 0 {
		sent, err := r.dispatcher.SendBatch(ctx, digest.BuildEmptyMessages(chats))
		sum.MessagesSent = sent
		if err != nil {
			metrics.IncRunFailure("dispatch")
			return r.fail(ctx, logger, sum, "dispatch", err)
		}
		return r.finish(ctx, logger, sum, nil)
	}

	dispatched := make(map[int64]struct{})
	grouped := digest.GroupReleasesByChat(chats, newReleases)
	var dispatchErr error
	for _, chat := range chats {
		rels := grouped[chat.ChatID]
		if len(rels) == 0 {
			continue
		}
		msgs := digest.BuildMessages([]config.ChatConfig{chat}, rels)
		sent, err := r.dispatcher.SendBatch(ctx, msgs)
		sum.MessagesSent += sent
		if err == nil && sent == len(msgs) {
			for _, rel := range rels {
				dispatched[rel.ID] = struct{}{}
			}
			continue
		}
		if err != nil {
			dispatchErr = err
			break
		}
	}

	// History gets exactly the releases whose chats were fully served, so
	// a mid-batch failure still records what went out. The write runs on a
	// detached context: the messages are already in the chats, and losing
	// the IDs to a shutdown cancel would re-announce them next run.
	if len(dispatched) > 0 {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		ids := make([]int64, 0, len(dispatched))
		for id := range dispatched {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		inserted, err := r.store.Append(persistCtx, ids)
		if err != nil {
			metrics.IncRunFailure("persist")
			logger.Warn().Err(err).
				Str(log.FieldEvent, "run.append.failed").
				Msg("could not append dispatched IDs")
		} else {
			sum.HistoryAppended = inserted
			if inserted > 0 {
				if err := r.store.Persist(persistCtx); err != nil {
					metrics.IncRunFailure("persist")
					logger.Warn().Err(err).
						Str(log.FieldEvent, "run.persist.failed").
						Msg("could not persist history")
				}
			}
		}
	}

	if dispatchErr != nil {
		metrics.IncRunFailure("dispatch")
		return r.fail(ctx, logger, sum, "dispatch", dispatchErr)
	}
	return r.finish(ctx, logger, sum, nil)
}

func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, sum Summary, stage string, err error) (Summary, error) {
	wrapped := fmt.Errorf("%s: %w", stage, err)
	sum.Err = wrapped.Error()
	sum, _ = r.finish(ctx, logger, sum, wrapped)
	return sum, wrapped
}

func (r *Runner) finish(ctx context.Context, logger zerolog.Logger, sum Summary, err error) (Summary, error) {
	sum.FinishedAt = r.now()
	outcome := sum.Outcome()

	metrics.RecordRun(outcome, sum.Duration())
	if outcome == "success" {
		metrics.RecordRunSuccess(sum.FinishedAt)
	}
	r.status.Record(sum)
	if r.archive != nil {
		if recErr := r.archive.Record(sum); recErr != nil {
			logger.Warn().Err(recErr).
				Str(log.FieldEvent, "run.archive.failed").
				Msg("could not archive run summary")
		}
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String(telemetry.RunOutcomeKey, outcome),
		attribute.Int(telemetry.RunNewTotalKey, sum.NewReleases),
	)

	evt := logger.Info()
	if err != nil {
		evt = logger.Error().Err(err)
	}
	evt.Str(log.FieldEvent, "run.finished").
		Str(log.FieldOutcome, outcome).
		Int("messages_sent", sum.MessagesSent).
		Int("history_appended", sum.HistoryAppended).
		Dur("duration", sum.Duration()).
		Msg("notification run finished")

	return sum, err
}

func splitByHistory(releases []tmdb.Release, contains func(int64) bool) ([]tmdb.Release, int) {
	var fresh []tmdb.Release
	duplicates := 0
	for _, rel := range releases {
		if contains(rel.ID) {
			duplicates++
			continue
		}
		fresh = append(fresh, rel)
	}
	return fresh, duplicates
}
