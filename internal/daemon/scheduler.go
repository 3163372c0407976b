// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

// RunFunc executes one notification run and reports its summary.
type RunFunc func(ctx context.Context) (jobs.Summary, error)

// Scheduler triggers notification runs on a fixed cadence with jitter.
// Consecutive failures double the interval up to MaxInterval; a clean run
// resets it. A run that is already active (for example triggered via the
// admin API) is skipped without touching the backoff state.
type Scheduler struct {
	run    RunFunc
	logger zerolog.Logger

	// Config
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Jitter       time.Duration
	StartupDelay time.Duration

	// Dependencies
	clock Clock

	// State
	mu              sync.Mutex
	currentInterval time.Duration
}

// Clock interface for mocking time
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer interface for mocking time.Timer
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealClock implements Clock using standard time package
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
func (RealClock) NewTimer(d time.Duration) Timer {
	return &RealTimer{t: time.NewTimer(d)}
}

// RealTimer wraps time.Timer
type RealTimer struct {
	t *time.Timer
}

func (r *RealTimer) C() <-chan time.Time        { return r.t.C }
func (r *RealTimer) Stop() bool                 { return r.t.Stop() }
func (r *RealTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// NewScheduler creates a scheduler that calls run every interval.
// The exported fields may be adjusted before Start.
func NewScheduler(run RunFunc, interval, jitter time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		run:          run,
		logger:       log.WithComponent("scheduler"),
		BaseInterval: interval,
		MaxInterval:  4 * interval,
		Jitter:       jitter,
		StartupDelay: 10 * time.Second,
		clock:        RealClock{},
	}
}

// Start begins the scheduling loop in a background goroutine.
// It returns immediately. The loop stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logger.Info().
		Str(log.FieldEvent, "scheduler.started").
		Dur("interval", s.BaseInterval).
		Dur("jitter", s.Jitter).
		Msg("run scheduler started")

	// The first run fires shortly after startup so a restarted daemon
	// catches up without waiting a full interval.
	timer := s.clock.NewTimer(s.nextDuration(true))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str(log.FieldEvent, "scheduler.stopped").Msg("run scheduler stopping")
			return
		case <-timer.C():
			s.execute(ctx)
			timer.Reset(s.nextDuration(false))
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) {
	sum, err := s.run(ctx)

	switch {
	case errors.Is(err, jobs.ErrRunActive):
		// A manual run holds the slot. Keep the cadence unchanged and
		// try again on the next tick.
		s.logger.Debug().
			Str(log.FieldEvent, "scheduler.skipped").
			Msg("run already active, skipping scheduled trigger")
	case err != nil:
		s.logger.Error().
			Err(err).
			Str(log.FieldEvent, "scheduler.run_failed").
			Str(log.FieldRunID, sum.RunID).
			Msg("scheduled run failed, backing off")
		s.increaseBackoff()
	default:
		s.logger.Info().
			Str(log.FieldEvent, "scheduler.run_completed").
			Str(log.FieldRunID, sum.RunID).
			Str(log.FieldOutcome, sum.Outcome()).
			Int("new_releases", sum.NewReleases).
			Int("messages_sent", sum.MessagesSent).
			Dur("duration", sum.Duration()).
			Msg("scheduled run completed")
		s.resetBackoff()
	}
}

func (s *Scheduler) nextDuration(isFirst bool) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isFirst {
		return s.StartupDelay + s.jitterDuration()
	}

	interval := s.currentInterval
	if interval == 0 {
		interval = s.BaseInterval
	}

	return interval + s.jitterDuration()
}

func (s *Scheduler) jitterDuration() time.Duration {
	// Random duration between -Jitter and +Jitter
	if s.Jitter == 0 {
		return 0
	}
	ms := int64(s.Jitter / time.Millisecond)
	delta := rand.Int63n(ms*2) - ms // -ms to +ms
	return time.Duration(delta) * time.Millisecond
}

func (s *Scheduler) increaseBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentInterval == 0 {
		s.currentInterval = s.BaseInterval
	}

	s.currentInterval *= 2
	if s.currentInterval > s.MaxInterval {
		s.currentInterval = s.MaxInterval
	}
	s.logger.Info().
		Str(log.FieldEvent, "scheduler.backoff").
		Str("next_interval", s.currentInterval.String()).
		Msg("increased scheduler backoff")
}

func (s *Scheduler) resetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentInterval != 0 && s.currentInterval != s.BaseInterval {
		s.logger.Info().
			Str(log.FieldEvent, "scheduler.backoff_reset").
			Str("next_interval", s.BaseInterval.String()).
			Msg("reset scheduler backoff")
	}
	s.currentInterval = s.BaseInterval
}
