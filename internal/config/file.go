// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the YAML configuration structure. Scalars are
// pointers so a merge can tell "absent" from "zero".
type FileConfig struct {
	LogLevel *string `yaml:"logLevel,omitempty"`

	TMDB      *fileTMDB      `yaml:"tmdb,omitempty"`
	Telegram  *fileTelegram  `yaml:"telegram,omitempty"`
	Chats     []ChatConfig   `yaml:"chats,omitempty"`
	History   *fileHistory   `yaml:"history,omitempty"`
	GitHub    *fileGitHub    `yaml:"github,omitempty"`
	Daemon    *fileDaemon    `yaml:"daemon,omitempty"`
	Telemetry *fileTelemetry `yaml:"telemetry,omitempty"`
	Outbound  *fileOutbound  `yaml:"outbound,omitempty"`
}

type fileTMDB struct {
	APIKey       *string  `yaml:"apiKey,omitempty"`
	BaseURL      *string  `yaml:"baseUrl,omitempty"`
	Lookback     *string  `yaml:"lookback,omitempty"`
	LookbackSkew *string  `yaml:"lookbackSkew,omitempty"`
	Timeout      *string  `yaml:"timeout,omitempty"`
	RateLimit    *float64 `yaml:"rateLimit,omitempty"`
	RateBurst    *int     `yaml:"rateBurst,omitempty"`
}

type fileTelegram struct {
	Token      *string  `yaml:"token,omitempty"`
	BaseURL    *string  `yaml:"baseUrl,omitempty"`
	Env        *string  `yaml:"env,omitempty"`
	Timeout    *string  `yaml:"timeout,omitempty"`
	MaxRetries *int     `yaml:"maxRetries,omitempty"`
	RateLimit  *float64 `yaml:"rateLimit,omitempty"`
}

type fileHistory struct {
	Backend      *string `yaml:"backend,omitempty"`
	Path         *string `yaml:"path,omitempty"`
	DSN          *string `yaml:"dsn,omitempty"`
	RedisAddr    *string `yaml:"redisAddr,omitempty"`
	RedisDB      *int    `yaml:"redisDb,omitempty"`
	Key          *string `yaml:"key,omitempty"`
	ArtifactName *string `yaml:"artifactName,omitempty"`
	ArtifactSync *bool   `yaml:"artifactSync,omitempty"`
}

type fileGitHub struct {
	Repository  *string `yaml:"repository,omitempty"`
	APIBase     *string `yaml:"apiBase,omitempty"`
	UploadsBase *string `yaml:"uploadsBase,omitempty"`
}

type fileDaemon struct {
	Interval         *string `yaml:"interval,omitempty"`
	Jitter           *string `yaml:"jitter,omitempty"`
	ListenAddr       *string `yaml:"listen,omitempty"`
	MetricsAddr      *string `yaml:"metricsListen,omitempty"`
	ShutdownGrace    *string `yaml:"shutdownGrace,omitempty"`
	ArchivePath      *string `yaml:"archivePath,omitempty"`
	ArchiveRetention *int    `yaml:"archiveRetention,omitempty"`
}

type fileTelemetry struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	ExporterType *string  `yaml:"exporter,omitempty"`
	Endpoint     *string  `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	Environment  *string  `yaml:"environment,omitempty"`
}

type fileOutbound struct {
	AllowCustomEndpoints *bool    `yaml:"allowCustomEndpoints,omitempty"`
	ExtraHosts           []string `yaml:"extraHosts,omitempty"`
}

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// FromEnv resolves configuration from the environment only.
func FromEnv(version string) (AppConfig, error) {
	return NewLoader("", version).Load()
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: parse file (strict) -> merge -> apply env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	if err := mergeEnvConfig(&cfg); err != nil {
		return cfg, err
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setDur := func(dst *time.Duration, src *string, field string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field, *src, err)
		}
		*dst = d
		return nil
	}

	setStr(&cfg.LogLevel, f.LogLevel)

	if t := f.TMDB; t != nil {
		setStr(&cfg.TMDB.APIKey, t.APIKey)
		setStr(&cfg.TMDB.BaseURL, t.BaseURL)
		if err := setDur(&cfg.TMDB.Lookback, t.Lookback, "tmdb.lookback"); err != nil {
			return err
		}
		if err := setDur(&cfg.TMDB.LookbackSkew, t.LookbackSkew, "tmdb.lookbackSkew"); err != nil {
			return err
		}
		if err := setDur(&cfg.TMDB.Timeout, t.Timeout, "tmdb.timeout"); err != nil {
			return err
		}
		setFloat(&cfg.TMDB.RateLimit, t.RateLimit)
		setInt(&cfg.TMDB.RateBurst, t.RateBurst)
	}

	if t := f.Telegram; t != nil {
		setStr(&cfg.Telegram.Token, t.Token)
		setStr(&cfg.Telegram.BaseURL, t.BaseURL)
		setStr(&cfg.Telegram.Env, t.Env)
		if err := setDur(&cfg.Telegram.Timeout, t.Timeout, "telegram.timeout"); err != nil {
			return err
		}
		setInt(&cfg.Telegram.MaxRetries, t.MaxRetries)
		setFloat(&cfg.Telegram.RateLimit, t.RateLimit)
	}

	if len(f.Chats) > 0 {
		cfg.Chats = f.Chats
	}

	if h := f.History; h != nil {
		setStr(&cfg.History.Backend, h.Backend)
		setStr(&cfg.History.Path, h.Path)
		setStr(&cfg.History.DSN, h.DSN)
		setStr(&cfg.History.RedisAddr, h.RedisAddr)
		setInt(&cfg.History.RedisDB, h.RedisDB)
		setStr(&cfg.History.Key, h.Key)
		setStr(&cfg.History.ArtifactName, h.ArtifactName)
		setBool(&cfg.History.ArtifactSync, h.ArtifactSync)
	}

	if g := f.GitHub; g != nil {
		setStr(&cfg.GitHub.Repository, g.Repository)
		setStr(&cfg.GitHub.APIBase, g.APIBase)
		setStr(&cfg.GitHub.UploadsBase, g.UploadsBase)
	}

	if d := f.Daemon; d != nil {
		if err := setDur(&cfg.Daemon.Interval, d.Interval, "daemon.interval"); err != nil {
			return err
		}
		if err := setDur(&cfg.Daemon.Jitter, d.Jitter, "daemon.jitter"); err != nil {
			return err
		}
		setStr(&cfg.Daemon.ListenAddr, d.ListenAddr)
		setStr(&cfg.Daemon.MetricsAddr, d.MetricsAddr)
		if err := setDur(&cfg.Daemon.ShutdownGrace, d.ShutdownGrace, "daemon.shutdownGrace"); err != nil {
			return err
		}
		setStr(&cfg.Daemon.ArchivePath, d.ArchivePath)
		setInt(&cfg.Daemon.ArchiveRetention, d.ArchiveRetention)
	}

	if t := f.Telemetry; t != nil {
		setBool(&cfg.Telemetry.Enabled, t.Enabled)
		setStr(&cfg.Telemetry.ExporterType, t.ExporterType)
		setStr(&cfg.Telemetry.Endpoint, t.Endpoint)
		setFloat(&cfg.Telemetry.SamplingRate, t.SamplingRate)
		setStr(&cfg.Telemetry.Environment, t.Environment)
	}

	if o := f.Outbound; o != nil {
		setBool(&cfg.Outbound.AllowCustomEndpoints, o.AllowCustomEndpoints)
		if len(o.ExtraHosts) > 0 {
			cfg.Outbound.ExtraHosts = o.ExtraHosts
		}
	}

	return nil
}

// mergeEnvConfig applies environment variables on top of cfg. The original
// deployment's variable names (TMDB_API_KEY, TELEGRAM_BOT_TOKEN,
// TELEGRAM_CHAT_ID, BOT_ENV, GITHUB_REPOSITORY, GITHUB_TOKEN) are kept;
// settings introduced since use the MNB_ prefix.
func mergeEnvConfig(cfg *AppConfig) error {
	cfg.LogLevel = ParseString("MNB_LOG_LEVEL", cfg.LogLevel)

	cfg.TMDB.APIKey = ParseString("TMDB_API_KEY", cfg.TMDB.APIKey)
	cfg.TMDB.BaseURL = ParseString("MNB_TMDB_BASE_URL", cfg.TMDB.BaseURL)
	cfg.TMDB.Lookback = ParseDuration("MNB_LOOKBACK", cfg.TMDB.Lookback)
	cfg.TMDB.LookbackSkew = ParseDuration("MNB_LOOKBACK_SKEW", cfg.TMDB.LookbackSkew)
	cfg.TMDB.Timeout = ParseDuration("MNB_TMDB_TIMEOUT", cfg.TMDB.Timeout)
	cfg.TMDB.RateLimit = ParseFloat("MNB_TMDB_RATE_LIMIT", cfg.TMDB.RateLimit)
	cfg.TMDB.RateBurst = ParseInt("MNB_TMDB_RATE_BURST", cfg.TMDB.RateBurst)

	cfg.Telegram.Token = ParseString("TELEGRAM_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.BaseURL = ParseString("MNB_TELEGRAM_BASE_URL", cfg.Telegram.BaseURL)
	cfg.Telegram.Env = ParseString("BOT_ENV", cfg.Telegram.Env)
	cfg.Telegram.Timeout = ParseDuration("MNB_TELEGRAM_TIMEOUT", cfg.Telegram.Timeout)
	cfg.Telegram.MaxRetries = ParseInt("MNB_TELEGRAM_MAX_RETRIES", cfg.Telegram.MaxRetries)
	cfg.Telegram.RateLimit = ParseFloat("MNB_TELEGRAM_RATE_LIMIT", cfg.Telegram.RateLimit)

	if path := ParseString("MNB_CHATS_FILE", ""); path != "" {
		chats, err := LoadChats(path)
		if err != nil {
			return err
		}
		cfg.Chats = chats
	}
	if raw, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok && len(cfg.Chats) == 0 {
		id, err := parseChatID(raw)
		if err != nil {
			return err
		}
		cfg.Chats = SingleGlobalChat(id)
	}

	cfg.History.Backend = ParseString("MNB_HISTORY_BACKEND", cfg.History.Backend)
	cfg.History.Path = ParseString("MNB_HISTORY_PATH", cfg.History.Path)
	cfg.History.DSN = ParseString("MNB_HISTORY_DSN", cfg.History.DSN)
	cfg.History.RedisAddr = ParseString("MNB_REDIS_ADDR", cfg.History.RedisAddr)
	cfg.History.RedisDB = ParseInt("MNB_REDIS_DB", cfg.History.RedisDB)
	cfg.History.RedisPassword = ParseString("MNB_REDIS_PASSWORD", cfg.History.RedisPassword)
	cfg.History.Key = ParseString("MNB_HISTORY_KEY", cfg.History.Key)
	cfg.History.ArtifactName = ParseString("MNB_ARTIFACT_NAME", cfg.History.ArtifactName)
	cfg.History.ArtifactSync = ParseBool("MNB_ARTIFACT_SYNC", cfg.History.ArtifactSync)

	cfg.GitHub.Repository = ParseString("GITHUB_REPOSITORY", cfg.GitHub.Repository)
	cfg.GitHub.Token = ParseString("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.GitHub.APIBase = ParseString("MNB_GITHUB_API_BASE", cfg.GitHub.APIBase)
	cfg.GitHub.UploadsBase = ParseString("MNB_GITHUB_UPLOADS_BASE", cfg.GitHub.UploadsBase)
	cfg.GitHub.Timeout = ParseDuration("MNB_GITHUB_TIMEOUT", cfg.GitHub.Timeout)

	cfg.Daemon.Interval = ParseDuration("MNB_DAEMON_INTERVAL", cfg.Daemon.Interval)
	cfg.Daemon.Jitter = ParseDuration("MNB_DAEMON_JITTER", cfg.Daemon.Jitter)
	cfg.Daemon.ListenAddr = ParseString("MNB_LISTEN", cfg.Daemon.ListenAddr)
	cfg.Daemon.MetricsAddr = ParseString("MNB_METRICS_LISTEN", cfg.Daemon.MetricsAddr)
	cfg.Daemon.APIToken = ParseString("MNB_API_TOKEN", cfg.Daemon.APIToken)
	cfg.Daemon.ShutdownGrace = ParseDuration("MNB_SHUTDOWN_GRACE", cfg.Daemon.ShutdownGrace)
	cfg.Daemon.ArchivePath = ParseString("MNB_ARCHIVE_PATH", cfg.Daemon.ArchivePath)
	cfg.Daemon.ArchiveRetention = ParseInt("MNB_ARCHIVE_RETENTION", cfg.Daemon.ArchiveRetention)

	cfg.Telemetry.Enabled = ParseBool("MNB_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = ParseString("MNB_TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString("MNB_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("MNB_TELEMETRY_SAMPLING", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = ParseString("MNB_TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.Outbound.AllowCustomEndpoints = ParseBool("MNB_ALLOW_CUSTOM_ENDPOINTS", cfg.Outbound.AllowCustomEndpoints)
	cfg.Outbound.ExtraHosts = ParseStringSlice("MNB_OUTBOUND_EXTRA_HOSTS", cfg.Outbound.ExtraHosts)

	return nil
}

func parseChatID(raw string) (int64, error) {
	id, err := parseInt64Strict(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChatID, raw)
	}
	return id, nil
}
