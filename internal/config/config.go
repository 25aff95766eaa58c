// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Source     SourceConfig     `mapstructure:"source"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SourceConfig identifies the venue website being watched.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	CalendarPath   string `mapstructure:"calendar_path"`
	DayPath        string `mapstructure:"day_path"`
	Timezone       string `mapstructure:"timezone"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BudgetConfig bounds how much one logical crawl may cost.
type BudgetConfig struct {
	MaxRequests     int `mapstructure:"max_requests"`
	MaxRetries      int `mapstructure:"max_retries"`
	RetryDelayMs    int `mapstructure:"retry_delay_ms"`
	CacheMaxEntries int `mapstructure:"cache_max_entries"`
}

// CrawlerConfig governs the per-invocation crawl behavior.
type CrawlerConfig struct {
	ChunkSize         int  `mapstructure:"chunk_size"`
	MaxConcurrent     int  `mapstructure:"max_concurrent"`
	MaxDates          int  `mapstructure:"max_dates"`
	TimeoutSeconds    int  `mapstructure:"timeout_seconds"`
	MinRunwaySeconds  int  `mapstructure:"min_runway_seconds"`
	ExtractionMinimal bool `mapstructure:"extraction_minimal"`
}

// CheckpointConfig selects and tunes the durable progress store.
type CheckpointConfig struct {
	// Backend is one of "memory", "badger", "gcs".
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	GCSPrefix      string `mapstructure:"gcs_prefix"`
	FreshnessHours int    `mapstructure:"freshness_hours"`
}

// CatalogConfig selects the downstream record store.
type CatalogConfig struct {
	// Backend is one of "noop", "postgres".
	Backend      string `mapstructure:"backend"`
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	ConnLifetime int    `mapstructure:"conn_lifetime_minutes"`
}

// NotifyConfig selects the notifier and its recipients.
type NotifyConfig struct {
	// Backend is one of "noop", "telegram", "pubsub".
	Backend       string   `mapstructure:"backend"`
	Recipients    []string `mapstructure:"recipients"`
	TelegramToken string   `mapstructure:"telegram_token"`
	ProjectID     string   `mapstructure:"project_id"`
	TopicName     string   `mapstructure:"topic_name"`
}

// ScheduleConfig controls the recurring runner.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOWWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("source.calendar_path", "/kalender")
	v.SetDefault("source.day_path", "/programm")
	v.SetDefault("source.timezone", "Europe/Berlin")
	v.SetDefault("source.user_agent", "showwatch-bot/0.1")
	v.SetDefault("source.respect_robots", true)
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("budget.max_requests", 60)
	v.SetDefault("budget.max_retries", 2)
	v.SetDefault("budget.retry_delay_ms", 500)
	v.SetDefault("budget.cache_max_entries", 128)
	v.SetDefault("crawler.chunk_size", 7)
	v.SetDefault("crawler.max_concurrent", 2)
	v.SetDefault("crawler.max_dates", 60)
	v.SetDefault("crawler.timeout_seconds", 120)
	v.SetDefault("crawler.min_runway_seconds", 10)
	v.SetDefault("checkpoint.backend", "badger")
	v.SetDefault("checkpoint.path", "data/checkpoint")
	v.SetDefault("checkpoint.gcs_prefix", "checkpoint")
	v.SetDefault("checkpoint.freshness_hours", 24)
	v.SetDefault("catalog.backend", "noop")
	v.SetDefault("catalog.table", "shows")
	v.SetDefault("notify.backend", "noop")
	v.SetDefault("schedule.cron", "*/30 * * * *")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Budget.MaxRequests <= 0 {
		return fmt.Errorf("budget.max_requests must be > 0")
	}
	if c.Crawler.ChunkSize <= 0 {
		return fmt.Errorf("crawler.chunk_size must be > 0")
	}
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be > 0")
	}
	switch c.Checkpoint.Backend {
	case "memory", "badger":
	case "gcs":
		if c.Checkpoint.GCSBucket == "" {
			return fmt.Errorf("checkpoint.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	switch c.Catalog.Backend {
	case "noop":
	case "postgres":
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown catalog.backend %q", c.Catalog.Backend)
	}
	switch c.Notify.Backend {
	case "noop":
	case "telegram":
		if c.Notify.TelegramToken == "" {
			return fmt.Errorf("notify.telegram_token must be set for the telegram backend")
		}
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicName == "" {
			return fmt.Errorf("notify.project_id and notify.topic_name must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}
	if len(c.Notify.Recipients) == 0 && c.Notify.Backend == "telegram" {
		return fmt.Errorf("notify.recipients must be set for the telegram backend")
	}
	return nil
}

// SourceTimeout returns the per-request timeout as a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed retry delay as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Budget.RetryDelayMs) * time.Millisecond
}

// InvocationTimeout returns the per-invocation wall-clock budget.
func (c Config) InvocationTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// MinRunway returns the least useful remaining time for an invocation.
func (c Config) MinRunway() time.Duration {
	return time.Duration(c.Crawler.MinRunwaySeconds) * time.Second
}

// Freshness returns the checkpoint freshness window.
func (c Config) Freshness() time.Duration {
	return time.Duration(c.Checkpoint.FreshnessHours) * time.Hour
}
