// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

// App owns the long-lived runtime lifecycle (config watcher, reload wiring,
// the run scheduler) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	scheduler    *Scheduler
	reloadSignal os.Signal
	onReload     func(config.AppConfig)
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, holder *config.Holder, scheduler *Scheduler) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		holder:       holder,
		scheduler:    scheduler,
		reloadSignal: syscall.SIGHUP,
	}
}

// OnReload registers fn to run after every config swap, in addition to the
// built-in log level update.
func (a *App) OnReload(fn func(config.AppConfig)) { a.onReload = fn }

// Run starts all owned background subsystems and blocks until ctx is cancelled
// or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.scheduler == nil {
		return ErrMissingScheduler
	}

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if the watcher
	// cannot be started.
	if a.holder != nil {
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		// Apply runtime-adjustable settings on every config swap. Everything
		// else reads the holder directly, so only the log level needs a push.
		applyCh := make(chan config.AppConfig, 1)
		a.holder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					log.SetLevel(cfg.LogLevel)
					if a.onReload != nil {
						a.onReload(cfg)
					}
				}
			}
		})
	}

	// SIGHUP trigger for manual reload.
	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.holder.Reload(context.Background()); err != nil {
						a.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	// Run scheduler (owned by the daemon; stops via ctx).
	a.scheduler.Start(ctx)

	// Server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
