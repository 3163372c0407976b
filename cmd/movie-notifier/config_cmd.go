// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "validate",
		Short:        "Load the configuration and print the resolved values",
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			cfg, _, path, err := loadConfig()
			if err != nil {
				return err
			}

			source := path
			if source == "" {
				source = "environment + defaults"
			}
			fmt.Printf("✓ %s is valid\n\n", source)
			printResolved(cfg)
			return nil
		},
	}
}

// printResolved prints the effective configuration. Secrets are reported as
// set or not set, never echoed.
func printResolved(cfg config.AppConfig) {
	fmt.Printf("log level:        %s\n", cfg.LogLevel)
	fmt.Printf("lookback:         %s (+%s skew)\n", cfg.TMDB.Lookback, cfg.TMDB.LookbackSkew)
	fmt.Printf("tmdb api key:     %s\n", secretState(cfg.TMDB.APIKey))
	fmt.Printf("telegram token:   %s (%s)\n", secretState(cfg.Telegram.Token), cfg.Telegram.Env)
	fmt.Printf("chats:            %d\n", len(cfg.Chats))
	fmt.Printf("history backend:  %s (%s)\n", cfg.History.Backend, historyTarget(cfg.History))
	if cfg.History.ArtifactSync {
		fmt.Printf("artifact sync:    on (%s, github token %s)\n",
			cfg.History.ArtifactName, secretState(cfg.GitHub.Token))
	} else {
		fmt.Printf("artifact sync:    off\n")
	}
	fmt.Printf("daemon interval:  %s ± %s\n", cfg.Daemon.Interval, cfg.Daemon.Jitter)
	fmt.Printf("admin api:        %s (token %s)\n", cfg.Daemon.ListenAddr, secretState(cfg.Daemon.APIToken))
	fmt.Printf("metrics:          %s\n", cfg.Daemon.MetricsAddr)
	if cfg.Telemetry.Enabled {
		fmt.Printf("telemetry:        on (%s %s)\n", cfg.Telemetry.ExporterType, cfg.Telemetry.Endpoint)
	} else {
		fmt.Printf("telemetry:        off\n")
	}
}

func secretState(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}

func historyTarget(h config.HistorySettings) string {
	switch h.Backend {
	case "sqlite":
		return h.DSN
	case "redis":
		return h.RedisAddr
	default:
		return h.Path
	}
}
