// SPDX-License-Identifier: MIT

// Package config resolves the bot configuration from environment variables,
// an optional YAML file and built-in defaults, in that precedence order.
package config

import "time"

// Upstream defaults. Overriding the base URLs is only intended for tests and
// self-hosted relays; overrides are checked against the outbound policy.
const (
	DefaultTMDBBaseURL     = "https://api.themoviedb.org/3"
	DefaultTelegramBaseURL = "https://api.telegram.org"
	DefaultGitHubAPIBase   = "https://api.github.com"
	DefaultGitHubUploads   = "https://uploads.github.com"
)

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version string

	// LogLevel adjusts the global level after the logger has booted. The
	// output format is env-only (MNB_LOG_FORMAT): the logger exists before
	// any config file is read.
	LogLevel string

	TMDB      TMDBSettings
	Telegram  TelegramSettings
	Chats     []ChatConfig
	History   HistorySettings
	GitHub    GitHubSettings
	Daemon    DaemonSettings
	Telemetry TelemetrySettings
	Outbound  OutboundSettings
}

// TMDBSettings configures the discover client.
type TMDBSettings struct {
	APIKey           string
	BaseURL          string
	Lookback         time.Duration
	LookbackSkew     time.Duration
	Timeout          time.Duration
	RateLimit        float64 // requests per second
	RateBurst        int
	BreakerThreshold int
	BreakerReset     time.Duration
}

// TelegramSettings configures the dispatcher.
type TelegramSettings struct {
	Token        string
	BaseURL      string
	Env          string // "dev" or "prod"
	Timeout      time.Duration
	MaxRetries   int
	MessageLimit int
	RateLimit    float64 // messages per second
	RateBurst    int
}

// HistorySettings selects and configures the sent-ID store.
type HistorySettings struct {
	Backend            string // "file", "sqlite" or "redis"
	Path               string // file backend state file
	DSN                string // sqlite database path
	RedisAddr          string
	RedisDB            int
	RedisPassword      string
	Key                string // redis set key
	ArtifactName       string
	LegacyArtifactName string
	ArtifactSync       bool
}

// GitHubSettings configures the Actions artifact client.
type GitHubSettings struct {
	Repository  string // "owner/repo"
	Token       string
	APIBase     string
	UploadsBase string
	Timeout     time.Duration
}

// DaemonSettings configures daemon mode.
type DaemonSettings struct {
	Interval         time.Duration
	Jitter           time.Duration
	ListenAddr       string
	MetricsAddr      string
	APIToken         string
	ShutdownGrace    time.Duration
	ArchivePath      string
	ArchiveRetention int
}

// TelemetrySettings configures the OTLP trace exporter.
type TelemetrySettings struct {
	Enabled      bool
	ExporterType string // "grpc" or "http"
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// OutboundSettings governs which upstream base URLs may be overridden.
type OutboundSettings struct {
	AllowCustomEndpoints bool
	ExtraHosts           []string
}

func defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		TMDB: TMDBSettings{
			BaseURL:          DefaultTMDBBaseURL,
			Lookback:         24 * time.Hour,
			LookbackSkew:     5 * time.Minute,
			Timeout:          30 * time.Second,
			RateLimit:        4,
			RateBurst:        4,
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
		},
		Telegram: TelegramSettings{
			BaseURL:      DefaultTelegramBaseURL,
			Env:          "dev",
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			MessageLimit: 4096,
			RateLimit:    1,
			RateBurst:    1,
		},
		History: HistorySettings{
			Backend:            "file",
			Path:               "state/sent_movie_ids.txt",
			DSN:                "state/history.db",
			Key:                "mnb:sent_movie_ids",
			ArtifactName:       "sent-movie-ids",
			LegacyArtifactName: "sent_movie_ids",
		},
		GitHub: GitHubSettings{
			APIBase:     DefaultGitHubAPIBase,
			UploadsBase: DefaultGitHubUploads,
			Timeout:     30 * time.Second,
		},
		Daemon: DaemonSettings{
			Interval:         6 * time.Hour,
			Jitter:           5 * time.Minute,
			ListenAddr:       ":8080",
			MetricsAddr:      ":9090",
			ShutdownGrace:    30 * time.Second,
			ArchivePath:      "state/runs",
			ArchiveRetention: 50,
		},
		Telemetry: TelemetrySettings{
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

// Window returns the release-date window ending at now. The skew widens the
// window backwards so a run that starts late never misses a release.
func (c TMDBSettings) Window(now time.Time) (start, end time.Time) {
	end = now.UTC()
	start = end.Add(-(c.Lookback + c.LookbackSkew))
	return start, end
}
