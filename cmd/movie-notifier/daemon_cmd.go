// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/evangelie19/movie-notifier-bot/internal/api"
	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/daemon"
	"github.com/evangelie19/movie-notifier-bot/internal/health"
	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/tmdb"
)

// lastRunFailureThreshold is how many consecutive failed runs flip the
// readiness probe to unhealthy.
const lastRunFailureThreshold = 3

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run as a long-lived service with scheduler and admin API",
		Long: "Starts the notification scheduler together with the admin API\n" +
			"(status, manual trigger, run archive) and the Prometheus metrics\n" +
			"endpoint. SIGHUP reloads the config file.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, loader, path, err := loadConfig()
			if err != nil {
				return err
			}
			log.SetLevel(cfg.LogLevel)
			logger := log.WithComponent("daemon")
			logConfigSource(logger, path)

			logger.Info().
				Str(log.FieldEvent, "startup").
				Str("version", version).
				Str("commit", commit).
				Str("build_date", buildDate).
				Str("listen", cfg.Daemon.ListenAddr).
				Msg("starting movie-notifier daemon")

			if err := health.PerformStartupChecks(cfg); err != nil {
				return err
			}

			holder := config.NewHolder(cfg, loader, path)

			tel, err := newTelemetry(ctx, cfg)
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}

			comps, err := buildComponents(cfg)
			if err != nil {
				return err
			}

			archive, err := jobs.OpenArchive(cfg.Daemon.ArchivePath, cfg.Daemon.ArchiveRetention)
			if err != nil {
				_ = comps.store.Close()
				return err
			}

			status := jobs.NewStatus()
			runner, err := jobs.NewRunner(jobs.RunnerConfig{
				Provider:   comps.provider,
				Dispatcher: comps.dispatcher,
				Store:      comps.store,
				// Chat list and window read the holder so SIGHUP reloads
				// apply to the next run.
				Chats: func() []config.ChatConfig { return holder.Get().Chats },
				Window: func(now time.Time) tmdb.Window {
					start, end := holder.Get().TMDB.Window(now)
					return tmdb.Window{Start: start, End: end}
				},
				Trigger: "schedule",
				Status:  status,
				Archive: archive,
			})
			if err != nil {
				_ = archive.Close()
				_ = comps.store.Close()
				return err
			}

			hm := health.NewManager(cfg.Version)
			hm.RegisterChecker(health.NewLastRunChecker(status, lastRunFailureThreshold, staleAfter(cfg.Daemon)))
			hm.RegisterChecker(health.NewHistoryChecker(cfg.History, func() int {
				return len(comps.store.Snapshot())
			}))
			hm.RegisterChecker(health.NewChatsChecker(func() int {
				return len(holder.Get().Chats)
			}))
			hm.RegisterChecker(health.NewUpstreamChecker("tmdb", comps.breaker.State))

			srv, err := api.New(api.Options{
				Config:  holder.Get,
				Trigger: runner,
				Runs:    archive,
				History: comps.store,
				Health:  hm,
				Version: cfg.Version,
			})
			if err != nil {
				_ = archive.Close()
				_ = comps.store.Close()
				return err
			}

			mgr, err := daemon.NewManager(daemon.Deps{
				Logger:         logger,
				APIHandler:     srv.Handler(),
				ListenAddr:     cfg.Daemon.ListenAddr,
				MetricsHandler: promhttp.Handler(),
				MetricsAddr:    cfg.Daemon.MetricsAddr,
				ShutdownGrace:  cfg.Daemon.ShutdownGrace,
			})
			if err != nil {
				_ = archive.Close()
				_ = comps.store.Close()
				return err
			}
			mgr.RegisterShutdownHook("telemetry", tel.Shutdown)
			mgr.RegisterShutdownHook("history", func(context.Context) error {
				return comps.store.Close()
			})
			mgr.RegisterShutdownHook("archive", func(context.Context) error {
				return archive.Close()
			})

			sched := daemon.NewScheduler(runner.Run, cfg.Daemon.Interval, cfg.Daemon.Jitter)

			app := daemon.NewApp(logger, mgr, holder, sched)
			app.OnReload(func(c config.AppConfig) {
				ids := make([]int64, 0, len(c.Chats))
				for _, chat := range c.Chats {
					ids = append(ids, chat.ChatID)
				}
				comps.dispatcher.UpdateAllowedChats(ids)
			})

			if err := app.Run(ctx); err != nil {
				logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon exited with error")
				return err
			}
			logger.Info().Msg("daemon exiting")
			return nil
		},
	}
}

// staleAfter is the readiness threshold for the last-run age: two intervals
// plus jitter means at least one full cycle was missed.
func staleAfter(d config.DaemonSettings) time.Duration {
	return 2*d.Interval + d.Jitter
}
