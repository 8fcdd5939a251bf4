package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// APIConfig describes the remote notification service.
type APIConfig struct {
	// BaseURL is the REST root, e.g. https://public-api.wordpress.com/rest/v1.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// FeedConfig controls the local notification store and its loaders.
type FeedConfig struct {
	PageSize       int `mapstructure:"page_size" yaml:"page_size"`
	MaxNotes       int `mapstructure:"max_notes" yaml:"max_notes"`
	BodyBatchSize  int `mapstructure:"body_batch_size" yaml:"body_batch_size"`
	FetchTimeoutMs int `mapstructure:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
}

// PollConfig controls background refresh of the feed.
type PollConfig struct {
	IntervalSec int  `mapstructure:"interval_sec" yaml:"interval_sec"`
	LoadBodies  bool `mapstructure:"load_bodies" yaml:"load_bodies"`
}

// ModerationConfig controls the confirmation poll after an action.
type ModerationConfig struct {
	ConfirmIntervalMs int `mapstructure:"confirm_interval_ms" yaml:"confirm_interval_ms"`
	ConfirmAttempts   int `mapstructure:"confirm_attempts" yaml:"confirm_attempts"`
}

// StatsConfig controls the fire-and-forget usage counter.
type StatsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Jetpack  bool   `mapstructure:"jetpack" yaml:"jetpack"`
}

// CacheConfig locates the persistent snapshot of the feed.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the application log.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API        APIConfig        `mapstructure:"api" yaml:"api"`
	Feed       FeedConfig       `mapstructure:"feed" yaml:"feed"`
	Poll       PollConfig       `mapstructure:"poll" yaml:"poll"`
	Moderation ModerationConfig `mapstructure:"moderation" yaml:"moderation"`
	Stats      StatsConfig      `mapstructure:"stats" yaml:"stats"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`

	// Token is never written to the config file; it comes from the
	// environment or the keyring.
	Token string `mapstructure:"-" yaml:"-"`
}

// EnvOverrides holds settings that may be supplied through the
// environment and take precedence over the config file.
type EnvOverrides struct {
	BaseURL   string `env:"NOTEFEED_API_BASE_URL"`
	Token     string `env:"NOTEFEED_TOKEN"`
	LogLevel  string `env:"NOTEFEED_LOG_LEVEL"`
	CachePath string `env:"NOTEFEED_CACHE_PATH"`
}

// ConfigDir returns ~/.config/notefeed.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "notefeed")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notefeed/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "https://public-api.wordpress.com/rest/v1",
			TimeoutSec: 30,
		},
		Feed: FeedConfig{
			PageSize:       9,
			BodyBatchSize:  3,
			FetchTimeoutMs: 7000,
		},
		Poll: PollConfig{
			IntervalSec: 120,
			LoadBodies:  true,
		},
		Moderation: ModerationConfig{
			ConfirmIntervalMs: 3000,
			ConfirmAttempts:   10,
		},
		Stats: StatsConfig{
			Enabled:  true,
			Endpoint: "https://stats.wordpress.com/g.gif",
		},
		Cache: CacheConfig{
			Path: filepath.Join(ConfigDir(), "notes.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "notefeed.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper
// and then applies environment overrides. If the file does not exist, the
// defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("feed.page_size", def.Feed.PageSize)
	v.SetDefault("feed.max_notes", def.Feed.MaxNotes)
	v.SetDefault("feed.body_batch_size", def.Feed.BodyBatchSize)
	v.SetDefault("feed.fetch_timeout_ms", def.Feed.FetchTimeoutMs)
	v.SetDefault("poll.interval_sec", def.Poll.IntervalSec)
	v.SetDefault("poll.load_bodies", def.Poll.LoadBodies)
	v.SetDefault("moderation.confirm_interval_ms", def.Moderation.ConfirmIntervalMs)
	v.SetDefault("moderation.confirm_attempts", def.Moderation.ConfirmAttempts)
	v.SetDefault("stats.enabled", def.Stats.Enabled)
	v.SetDefault("stats.endpoint", def.Stats.Endpoint)
	v.SetDefault("stats.jetpack", def.Stats.Jetpack)
	v.SetDefault("cache.path", def.Cache.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	cfg := def
	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	return cfg, nil
}

// applyEnv overlays non-empty environment overrides.
func (c *AppConfig) applyEnv() error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.BaseURL != "" {
		c.API.BaseURL = o.BaseURL
	}
	if o.Token != "" {
		c.Token = o.Token
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.CachePath != "" {
		c.Cache.Path = o.CachePath
	}
	return nil
}

// normalize replaces out-of-range values with defaults.
func (c *AppConfig) normalize() {
	def := defaultAppConfig()
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = def.API.TimeoutSec
	}
	if c.Feed.PageSize <= 0 {
		c.Feed.PageSize = def.Feed.PageSize
	}
	if c.Feed.MaxNotes < 0 {
		c.Feed.MaxNotes = 0
	}
	if c.Feed.BodyBatchSize <= 0 {
		c.Feed.BodyBatchSize = def.Feed.BodyBatchSize
	}
	if c.Feed.FetchTimeoutMs <= 0 {
		c.Feed.FetchTimeoutMs = def.Feed.FetchTimeoutMs
	}
	if c.Poll.IntervalSec <= 0 {
		c.Poll.IntervalSec = def.Poll.IntervalSec
	}
	if c.Moderation.ConfirmIntervalMs <= 0 {
		c.Moderation.ConfirmIntervalMs = def.Moderation.ConfirmIntervalMs
	}
	if c.Moderation.ConfirmAttempts <= 0 {
		c.Moderation.ConfirmAttempts = def.Moderation.ConfirmAttempts
	}
}

// FetchTimeout returns the per-page fetch timeout.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Feed.FetchTimeoutMs) * time.Millisecond
}

// ConfirmInterval returns the confirmation poll period.
func (c *AppConfig) ConfirmInterval() time.Duration {
	return time.Duration(c.Moderation.ConfirmIntervalMs) * time.Millisecond
}

// PollInterval returns the background refresh period.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSec) * time.Second
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("feed", cfg.Feed)
	v.Set("poll", cfg.Poll)
	v.Set("moderation", cfg.Moderation)
	v.Set("stats", cfg.Stats)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
