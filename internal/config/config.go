package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/elonfeng/repscore/pkg/github"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig        `yaml:"database"`
	Redis    RedisConfig           `yaml:"redis"`
	Cache    CacheConfig           `yaml:"cache"`
	GitHub   GitHubConfig          `yaml:"github"`
	Batch    BatchConfig           `yaml:"batch"`
	Scoring  activity.ScoringRules `yaml:"scoring"`
	Alerts   AlertsConfig          `yaml:"alerts"`
	Server   ServerConfig          `yaml:"server"`
	Log      LogConfig             `yaml:"log"`
	Timezone string                `yaml:"timezone"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig enables the cross-process entity lock. Empty URL keeps locks
// in-process.
type RedisConfig struct {
	URL     string `yaml:"url"`
	LockTTL string `yaml:"lock_ttl"`
}

// ParseLockTTL returns the lock expiry as time.Duration.
func (r RedisConfig) ParseLockTTL() time.Duration {
	return parseDuration(r.LockTTL, 2*time.Minute)
}

// CacheConfig sets how long computed data stays fresh.
type CacheConfig struct {
	ActivityTTL string `yaml:"activity_ttl"`
	GitHubTTL   string `yaml:"github_ttl"`
}

// ParseActivityTTL returns the activity record TTL as time.Duration.
func (c CacheConfig) ParseActivityTTL() time.Duration {
	return parseDuration(c.ActivityTTL, time.Hour)
}

// ParseGitHubTTL returns the external sub-record TTL as time.Duration.
func (c CacheConfig) ParseGitHubTTL() time.Duration {
	return parseDuration(c.GitHubTTL, 24*time.Hour)
}

// GitHubConfig configures the external contribution adapter.
type GitHubConfig struct {
	Token         string         `yaml:"token"`
	APIURL        string         `yaml:"api_url"`
	WebURL        string         `yaml:"web_url"`
	Timeout       string         `yaml:"timeout"`
	MaxConcurrent int64          `yaml:"max_concurrent"`
	Retries       int            `yaml:"retries"`
	RecentDays    int            `yaml:"recent_days"`
	Weights       github.Weights `yaml:"weights"`
}

// ParseTimeout returns the per-fetch timeout as time.Duration.
func (g GitHubConfig) ParseTimeout() time.Duration {
	return parseDuration(g.Timeout, 20*time.Second)
}

// BatchConfig configures the worker pool and the scheduler cadence.
type BatchConfig struct {
	Workers          int    `yaml:"workers"`
	EntityTimeout    string `yaml:"entity_timeout"`
	Interval         string `yaml:"interval"`
	ExternalInterval string `yaml:"external_interval"`
}

// ParseEntityTimeout returns the per-entity budget as time.Duration.
func (b BatchConfig) ParseEntityTimeout() time.Duration {
	return parseDuration(b.EntityTimeout, time.Minute)
}

// ParseInterval returns the full recompute interval as time.Duration.
func (b BatchConfig) ParseInterval() time.Duration {
	return parseDuration(b.Interval, 6*time.Hour)
}

// ParseExternalInterval returns the forced GitHub refresh interval.
func (b BatchConfig) ParseExternalInterval() time.Duration {
	return parseDuration(b.ExternalInterval, 24*time.Hour)
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Location resolves the configured timezone, falling back to local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", c.Timezone, err)
	}
	return loc, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./repscore.db"},
		Redis:    RedisConfig{LockTTL: "2m"},
		Cache: CacheConfig{
			ActivityTTL: "1h",
			GitHubTTL:   "24h",
		},
		GitHub: GitHubConfig{
			Timeout:       "20s",
			MaxConcurrent: 4,
			Retries:       2,
			RecentDays:    30,
			Weights:       github.DefaultWeights(),
		},
		Batch: BatchConfig{
			Workers:          4,
			EntityTimeout:    "1m",
			Interval:         "6h",
			ExternalInterval: "24h",
		},
		Scoring: activity.DefaultScoringRules(),
		Server:  ServerConfig{Port: 8080},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPSCORE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REPSCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REPSCORE_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("REPSCORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPSCORE_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("REPSCORE_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
