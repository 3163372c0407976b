// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mnbnet "github.com/evangelie19/movie-notifier-bot/internal/platform/net"
)

// upstreamHosts are always allowed outbound targets.
var upstreamHosts = []string{
	"api.themoviedb.org",
	"api.telegram.org",
	"api.github.com",
	"uploads.github.com",
}

// Validate checks the configuration for problems and aggregates them into a
// single error.
func Validate(cfg AppConfig) error {
	var problems []string

	if cfg.TMDB.APIKey == "" {
		problems = append(problems, "TMDB_API_KEY is required")
	}
	if cfg.Telegram.Token == "" && cfg.Telegram.Env == "prod" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is required in prod")
	}
	switch cfg.Telegram.Env {
	case "dev", "prod":
	default:
		problems = append(problems, fmt.Sprintf("BOT_ENV must be dev or prod, got %q", cfg.Telegram.Env))
	}

	if len(cfg.Chats) == 0 {
		problems = append(problems, "no chats configured (set TELEGRAM_CHAT_ID, chats: in the config file, or MNB_CHATS_FILE)")
	}
	for i, chat := range cfg.Chats {
		if chat.ChatID == 0 {
			problems = append(problems, fmt.Sprintf("chats[%d]: chatId must be non-zero", i))
		}
	}

	switch cfg.History.Backend {
	case "file", "sqlite", "redis":
	default:
		problems = append(problems, fmt.Sprintf("history backend must be file, sqlite or redis, got %q", cfg.History.Backend))
	}
	if cfg.History.Backend == "redis" && cfg.History.RedisAddr == "" {
		problems = append(problems, "history backend redis requires MNB_REDIS_ADDR")
	}
	if cfg.History.ArtifactSync {
		if _, _, err := SplitRepository(cfg.GitHub.Repository); err != nil {
			problems = append(problems, err.Error())
		}
		if cfg.GitHub.Token == "" {
			problems = append(problems, "artifact sync requires GITHUB_TOKEN")
		}
	}

	if cfg.TMDB.Lookback <= 0 {
		problems = append(problems, "tmdb lookback must be positive")
	}
	if cfg.Daemon.Interval < time.Minute {
		problems = append(problems, "daemon interval must be at least 1m")
	}
	if cfg.Daemon.Jitter < 0 || cfg.Daemon.Jitter >= cfg.Daemon.Interval {
		problems = append(problems, "daemon jitter must be non-negative and smaller than the interval")
	}
	if cfg.Daemon.ArchiveRetention <= 0 {
		problems = append(problems, "daemon archive retention must be positive")
	}

	switch cfg.Telemetry.ExporterType {
	case "grpc", "http":
	default:
		problems = append(problems, fmt.Sprintf("telemetry exporter must be grpc or http, got %q", cfg.Telemetry.ExporterType))
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		problems = append(problems, "telemetry sampling rate must be within [0, 1]")
	}

	problems = append(problems, validateEndpoints(cfg)...)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// validateEndpoints refuses non-default upstream base URLs that fail the
// outbound policy. A poisoned Telegram base URL would receive the bot token
// in the request path, so overrides are treated as a security decision.
func validateEndpoints(cfg AppConfig) []string {
	policy := OutboundPolicy(cfg)

	var problems []string
	check := func(name, raw, def string) {
		if raw == "" || raw == def {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := mnbnet.ValidateOutboundURL(ctx, raw, policy); err != nil {
			problems = append(problems, fmt.Sprintf("%s %q rejected by outbound policy: %v", name, raw, err))
		}
	}
	check("tmdb base url", cfg.TMDB.BaseURL, DefaultTMDBBaseURL)
	check("telegram base url", cfg.Telegram.BaseURL, DefaultTelegramBaseURL)
	check("github api base", cfg.GitHub.APIBase, DefaultGitHubAPIBase)
	check("github uploads base", cfg.GitHub.UploadsBase, DefaultGitHubUploads)
	return problems
}

// OutboundPolicy derives the outbound access policy from the configuration.
func OutboundPolicy(cfg AppConfig) mnbnet.OutboundPolicy {
	hosts := append([]string{}, upstreamHosts...)
	hosts = append(hosts, cfg.Outbound.ExtraHosts...)
	// https only: the Telegram bot token travels in the request path, so a
	// cleartext upstream would leak it.
	policy := mnbnet.OutboundPolicy{
		Enabled: true,
		Allow: mnbnet.OutboundAllowlist{
			Hosts:   hosts,
			Ports:   []int{443},
			Schemes: []string{"https"},
		},
	}
	if cfg.Outbound.AllowCustomEndpoints {
		// Loopback and RFC1918 targets are what self-hosted relays and tests
		// actually use.
		policy.Allow.Schemes = append(policy.Allow.Schemes, "http")
		policy.Allow.CIDRs = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
		policy.Allow.Ports = nil
		policy.AllowAnyPort = true
	}
	return policy
}

// SplitRepository splits "owner/repo" into its parts.
func SplitRepository(repository string) (owner, repo string, err error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, repository)
	}
	return parts[0], parts[1], nil
}

func parseInt64Strict(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
