// SPDX-License-Identifier: MIT

// movie-notifier entry point. Kept deliberately thin: build-time vars, root
// command wiring, shared pipeline construction.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/evangelie19/movie-notifier-bot/internal/artifact"
	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/history"
	"github.com/evangelie19/movie-notifier-bot/internal/platform/httpx"
	"github.com/evangelie19/movie-notifier-bot/internal/resilience"
	"github.com/evangelie19/movie-notifier-bot/internal/telegram"
	"github.com/evangelie19/movie-notifier-bot/internal/telemetry"
	"github.com/evangelie19/movie-notifier-bot/internal/tmdb"
)

// Build-time variables injected via:
//
//	go build -ldflags "-X main.version=v1.2.0 -X main.commit=abc1234 -X main.buildDate=2026-01-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:           "movie-notifier",
	Short:         "Telegram digest bot for new digital movie releases",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"Path to config YAML (defaults to MNB_CONFIG, then ./config.yaml)")

	rootCmd.AddCommand(
		newRunCmd(),
		newDaemonCmd(),
		newVersionCmd(),
		newConfigCmd(),
	)
}

// resolveConfigPath returns the config file to load: the --config flag wins,
// then MNB_CONFIG, then ./config.yaml when it exists. An empty result means
// environment and defaults only.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if env := config.ParseString("MNB_CONFIG", ""); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func loadConfig() (config.AppConfig, *config.Loader, string, error) {
	path := resolveConfigPath()
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	return cfg, loader, path, err
}

// components are the pipeline pieces shared by run and daemon mode.
type components struct {
	store      history.Store
	provider   *tmdb.Client
	dispatcher *telegram.Dispatcher
	// breaker is the TMDB circuit breaker, surfaced for the readiness probe.
	breaker *resilience.CircuitBreaker
}

func buildComponents(cfg config.AppConfig) (*components, error) {
	store, err := history.NewStoreFromConfig(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	if cfg.History.ArtifactSync {
		creds, err := artifact.CredentialsFromConfig(cfg.GitHub)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("artifact credentials: %w", err)
		}
		client := artifact.New(creds,
			artifact.WithAPIBaseURL(cfg.GitHub.APIBase),
			artifact.WithUploadsBaseURL(cfg.GitHub.UploadsBase),
			artifact.WithHTTPClient(httpx.NewClient(httpx.Options{
				Timeout:   cfg.GitHub.Timeout,
				Transport: telemetry.WrapTransport,
			})),
		)
		store = history.NewArtifactSync(store, client, cfg.History.ArtifactName, cfg.History.LegacyArtifactName)
	}

	breaker := resilience.New("tmdb", cfg.TMDB.BreakerThreshold, cfg.TMDB.BreakerReset)
	providerOpts := []tmdb.ClientOption{
		tmdb.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.TMDB.RateLimit), cfg.TMDB.RateBurst)),
		tmdb.WithBreaker(breaker),
		tmdb.WithHistory(store.Contains),
		tmdb.WithHTTPClient(httpx.NewClient(httpx.Options{
			Timeout:   cfg.TMDB.Timeout,
			Transport: telemetry.WrapTransport,
		})),
	}
	if cfg.TMDB.BaseURL != "" {
		providerOpts = append(providerOpts, tmdb.WithBaseURL(cfg.TMDB.BaseURL))
	}
	provider := tmdb.New(cfg.TMDB.APIKey, providerOpts...)

	// The instrumented transport is only passed when a token exists;
	// otherwise it would shadow the dev-mode dry-run transport.
	var dispatchOpts []telegram.DispatcherOption
	if cfg.Telegram.Token != "" {
		dispatchOpts = append(dispatchOpts, telegram.WithTransport(&telegram.HTTPTransport{
			Client: httpx.NewClient(httpx.Options{
				Timeout:   cfg.Telegram.Timeout,
				Transport: telemetry.WrapTransport,
			}),
		}))
	}
	dispatcher, err := telegram.NewFromConfig(cfg.Telegram, cfg.Chats, dispatchOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &components{store: store, provider: provider, dispatcher: dispatcher, breaker: breaker}, nil
}
