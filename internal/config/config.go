// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers .env, an optional YAML file and FISHY_* env vars over the defaults.
// - External errors must be wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Limiter backends.
const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

// Session stores.
const (
	SessionsSQL    = "sql"
	SessionsMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, tees logs into a rotating file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver selects sqlite or postgres.
	DBDriver string `koanf:"db_driver"`
	// DBDSN is the driver specific data source name.
	DBDSN string `koanf:"db_dsn"`

	// GitDir holds the local mirrors of repository-sourced lists.
	GitDir      string `koanf:"git_dir"`
	GitUsername string `koanf:"git_username"`
	GitToken    string `koanf:"git_token"`

	// RefreshIntervalMinutes spaces scheduled ingestion runs; 60 aligns runs to the hour.
	RefreshIntervalMinutes int  `koanf:"refresh_interval_minutes"`
	RefreshOnStart         bool `koanf:"refresh_on_start"`
	FetchTimeoutSeconds    int  `koanf:"fetch_timeout_seconds"`
	// FetchRPS paces outbound list API requests.
	FetchRPS float64 `koanf:"fetch_rps"`

	// DrawCooldownSeconds is the per-list draw window; DrawsPerWindow its quota.
	DrawCooldownSeconds int `koanf:"draw_cooldown_seconds"`
	DrawsPerWindow      int `koanf:"draws_per_window"`
	// CommandCooldownMS gates any command per user.
	CommandCooldownMS int `koanf:"command_cooldown_ms"`

	LimiterBackend  string `koanf:"limiter_backend"`
	RedisAddr       string `koanf:"redis_addr"`
	RedisPassword   string `koanf:"redis_password"`
	RedisDB         int    `koanf:"redis_db"`
	LimiterFailOpen bool   `koanf:"limiter_fail_open"`

	TradeTimeoutSeconds     int    `koanf:"trade_timeout_seconds"`
	SessionStore            string `koanf:"session_store"`
	SessionRetentionMinutes int    `koanf:"session_retention_minutes"`

	// NotifyQueueSize bounds the trade event queue; NotifyWorkers drain it.
	NotifyQueueSize int    `koanf:"notify_queue_size"`
	NotifyWorkers   int    `koanf:"notify_workers"`
	WebhookURL      string `koanf:"webhook_url"`

	// ListsFile optionally points at a TOML file overriding the list catalogue.
	ListsFile   string `koanf:"lists_file"`
	DefaultList string `koanf:"default_list"`

	// MaxLeaderboardLimit caps GET leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Metrics naming. MetricsBuckets is a comma separated list of latency
	// bucket bounds in milliseconds; MetricsLabels is k=v pairs, comma separated.
	MetricsNamespace      string `koanf:"metrics_namespace"`
	MetricsSubsystem      string `koanf:"metrics_subsystem"`
	MetricsBuckets        string `koanf:"metrics_buckets"`
	MetricsLabels         string `koanf:"metrics_labels"`
	MetricsRefreshSeconds int    `koanf:"metrics_refresh_seconds"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		DBDriver:                DriverSQLite,
		DBDSN:                   "file:fishy.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		GitDir:                  ".git-lists",
		RefreshIntervalMinutes:  60,
		RefreshOnStart:          true,
		FetchTimeoutSeconds:     30,
		FetchRPS:                2,
		DrawCooldownSeconds:     3600,
		DrawsPerWindow:          1,
		CommandCooldownMS:       2000,
		LimiterBackend:          LimiterMemory,
		RedisAddr:               "localhost:6379",
		TradeTimeoutSeconds:     120,
		SessionStore:            SessionsSQL,
		SessionRetentionMinutes: 60,
		NotifyQueueSize:         10_000,
		NotifyWorkers:           4,
		DefaultList:             "aredl",
		MaxLeaderboardLimit:     100,
		MetricsNamespace:        "fishy",
		MetricsSubsystem:        "game",
		MetricsRefreshSeconds:   10,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.LimiterBackend != LimiterMemory && c.LimiterBackend != LimiterRedis:
		return fmt.Errorf("%w: unknown limiter_backend %q", ErrInvalidConfig, c.LimiterBackend)
	case c.SessionStore != SessionsSQL && c.SessionStore != SessionsMemory:
		return fmt.Errorf("%w: unknown session_store %q", ErrInvalidConfig, c.SessionStore)
	case c.RefreshIntervalMinutes <= 0:
		return fmt.Errorf("%w: refresh_interval_minutes must be positive", ErrInvalidConfig)
	case c.DrawCooldownSeconds <= 0 || c.DrawsPerWindow <= 0:
		return fmt.Errorf("%w: draw cooldown must be positive", ErrInvalidConfig)
	case c.CommandCooldownMS < 0:
		return fmt.Errorf("%w: command_cooldown_ms must not be negative", ErrInvalidConfig)
	case c.TradeTimeoutSeconds <= 0:
		return fmt.Errorf("%w: trade_timeout_seconds must be positive", ErrInvalidConfig)
	case c.FetchRPS <= 0:
		return fmt.Errorf("%w: fetch_rps must be positive", ErrInvalidConfig)
	case c.MetricsRefreshSeconds <= 0:
		return fmt.Errorf("%w: metrics_refresh_seconds must be positive", ErrInvalidConfig)
	}
	if _, err := c.MetricsBucketBounds(); err != nil {
		return err
	}
	if _, err := c.MetricsConstLabels(); err != nil {
		return err
	}
	return nil
}

// RefreshInterval returns the scheduler period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// DrawWindow returns the per-list draw cooldown window.
func (c *Config) DrawWindow() time.Duration {
	return time.Duration(c.DrawCooldownSeconds) * time.Second
}

// CommandWindow returns the per-user command cooldown window.
func (c *Config) CommandWindow() time.Duration {
	return time.Duration(c.CommandCooldownMS) * time.Millisecond
}

// TradeTimeout returns how long a pending trade stays open.
func (c *Config) TradeTimeout() time.Duration {
	return time.Duration(c.TradeTimeoutSeconds) * time.Second
}

// FetchTimeout bounds a single source fetch.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// SessionRetention is how long terminal trade sessions are kept.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionMinutes) * time.Minute
}

// MetricsRefresh is the system gauge sampling period.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshSeconds) * time.Second
}

// MetricsBucketBounds parses MetricsBuckets. Nil means the built-in buckets.
func (c *Config) MetricsBucketBounds() ([]float64, error) {
	if strings.TrimSpace(c.MetricsBuckets) == "" {
		return nil, nil
	}
	parts := strings.Split(c.MetricsBuckets, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: metrics_buckets entry %q", ErrInvalidConfig, p)
		}
		out = append(out, v)
	}
	if !sort.Float64sAreSorted(out) {
		return nil, fmt.Errorf("%w: metrics_buckets must be ascending", ErrInvalidConfig)
	}
	return out, nil
}

// MetricsConstLabels parses MetricsLabels.
func (c *Config) MetricsConstLabels() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(c.MetricsLabels) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.MetricsLabels, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: metrics_labels entry %q", ErrInvalidConfig, pair)
		}
		out[k] = v
	}
	return out, nil
}
