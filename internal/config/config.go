// Package config loads service configuration from disk and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the retrieval service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Services ServicesConfig `mapstructure:"services"`
	DB       DBConfig       `mapstructure:"db"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// BrowserConfig tunes the automation sessions.
type BrowserConfig struct {
	Headless           bool   `mapstructure:"headless"`
	StepTimeoutSeconds int    `mapstructure:"step_timeout_seconds"`
	ProxyServer        string `mapstructure:"proxy_server"`
	UserAgent          string `mapstructure:"user_agent"`
}

// BatchConfig tunes batch execution.
type BatchConfig struct {
	MaxWorkers      int    `mapstructure:"max_workers"`
	ThrottleSeconds int    `mapstructure:"throttle_seconds"`
	ScrollCount     int    `mapstructure:"scroll_count"`
	DownloadRoot    string `mapstructure:"download_root"`
	ProgressEvery   int    `mapstructure:"progress_every"`
}

// ServicesConfig points at the external download services.
type ServicesConfig struct {
	VideoURL       string `mapstructure:"video_url"`
	PhotoURL       string `mapstructure:"photo_url"`
	ProfileBaseURL string `mapstructure:"profile_base_url"`
}

// DBConfig holds the ledger connection settings.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// NotifyConfig selects and configures the notification transport.
type NotifyConfig struct {
	// Provider is one of "telegram", "pubsub", "log", "none".
	Provider      string `mapstructure:"provider"`
	TelegramToken string `mapstructure:"telegram_token"`
	ProjectID     string `mapstructure:"project_id"`
	TopicName     string `mapstructure:"topic_name"`
}

// ArchiveConfig selects and configures the media archive.
type ArchiveConfig struct {
	// Provider is one of "local", "gcs", "none".
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// REELGRAB prefix with underscores, e.g. REELGRAB_BATCH_MAX_WORKERS.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REELGRAB")
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
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.step_timeout_seconds", 25)
	v.SetDefault("batch.max_workers", 2)
	v.SetDefault("batch.throttle_seconds", 3)
	v.SetDefault("batch.scroll_count", 5)
	v.SetDefault("batch.download_root", "downloads")
	v.SetDefault("batch.progress_every", 5)
	v.SetDefault("browser.proxy_server", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("services.video_url", "")
	v.SetDefault("services.photo_url", "")
	v.SetDefault("services.profile_base_url", "")
	// Env-only keys need a registered default for Unmarshal to see them.
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic_name", "")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("notify.provider", "log")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "media")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch.max_workers must be > 0")
	}
	if c.Batch.ThrottleSeconds < 0 {
		return fmt.Errorf("batch.throttle_seconds must be >= 0")
	}
	if c.Batch.ScrollCount <= 0 {
		return fmt.Errorf("batch.scroll_count must be > 0")
	}
	if c.Browser.StepTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.step_timeout_seconds must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	switch c.Notify.Provider {
	case "telegram":
		if c.Notify.TelegramToken == "" {
			return fmt.Errorf("notify.telegram_token is required for the telegram provider")
		}
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicName == "" {
			return fmt.Errorf("notify.project_id and notify.topic_name are required for the pubsub provider")
		}
	case "log", "none", "":
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	switch c.Archive.Provider {
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs provider")
		}
	case "none", "":
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	return nil
}

// StepTimeout returns the browser step timeout as a duration.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.Browser.StepTimeoutSeconds) * time.Second
}

// Throttle returns the submission throttle as a duration.
func (c Config) Throttle() time.Duration {
	return time.Duration(c.Batch.ThrottleSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
