// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/health"
	"github.com/evangelie19/movie-notifier-bot/internal/jobs"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
	"github.com/evangelie19/movie-notifier-bot/internal/telemetry"
	"github.com/evangelie19/movie-notifier-bot/internal/tmdb"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one notification run and exit",
		Long: "Fetches new digital releases from TMDB, sends the digest to every\n" +
			"configured chat and appends the sent IDs to the history. Intended for\n" +
			"cron and GitHub Actions; exits non-zero when the run fails.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, _, path, err := loadConfig()
			if err != nil {
				return err
			}
			log.SetLevel(cfg.LogLevel)
			logger := log.WithComponent("cli")
			logConfigSource(logger, path)

			if err := health.PerformStartupChecks(cfg); err != nil {
				return err
			}

			tel, err := newTelemetry(ctx, cfg)
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()

			comps, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = comps.store.Close() }()

			runner, err := jobs.NewRunner(jobs.RunnerConfig{
				Provider:   comps.provider,
				Dispatcher: comps.dispatcher,
				Store:      comps.store,
				Chats:      func() []config.ChatConfig { return cfg.Chats },
				Window: func(now time.Time) tmdb.Window {
					start, end := cfg.TMDB.Window(now)
					return tmdb.Window{Start: start, End: end}
				},
				Trigger: "cli",
			})
			if err != nil {
				return err
			}

			sum, runErr := runner.Run(ctx)
			writeStepSummary(sum)

			if runErr != nil {
				return fmt.Errorf("notification run failed: %w", runErr)
			}
			return nil
		},
	}
}

func logConfigSource(logger zerolog.Logger, path string) {
	if path != "" {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "file").
			Str(log.FieldPath, path).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}
}

func newTelemetry(ctx context.Context, cfg config.AppConfig) (*telemetry.Provider, error) {
	return telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "movie-notifier-bot",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
}

// writeStepSummary appends the run summary to $GITHUB_STEP_SUMMARY when the
// workflow provides one, so the digest outcome shows up on the Actions run
// page.
func writeStepSummary(sum jobs.Summary) {
	path := config.ParseString("GITHUB_STEP_SUMMARY", "")
	if path == "" {
		return
	}
	logger := log.WithComponent("cli")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot open step summary file")
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(sum.RenderMarkdown()); err != nil {
		logger.Warn().Err(err).Msg("cannot write step summary")
	}
}
