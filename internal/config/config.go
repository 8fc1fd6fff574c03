package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Membership MembershipConfig `mapstructure:"membership"`
	Hosting    HostingConfig    `mapstructure:"hosting"`
	Publish    PublishConfig    `mapstructure:"publish"`
	Image      ImageConfig      `mapstructure:"image"`
	Session    SessionConfig    `mapstructure:"session"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Health     HealthConfig     `mapstructure:"health"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type TelegramConfig struct {
	BotToken        string        `mapstructure:"bot_token"`
	BotUsername     string        `mapstructure:"bot_username"`
	AdminIDs        []int64       `mapstructure:"admin_ids"`
	RequiredChannel string        `mapstructure:"required_channel"`
	FreeMode        bool          `mapstructure:"free_mode"`
	PollingTimeout  int           `mapstructure:"polling_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

type MembershipConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

type HostingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PublishConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type ImageConfig struct {
	Transform      bool   `mapstructure:"transform"`
	MaxDimension   int    `mapstructure:"max_dimension"`
	MaxPixels      int    `mapstructure:"max_pixels"`
	JPEGQuality    int    `mapstructure:"jpeg_quality"`
	LocalArtifacts bool   `mapstructure:"local_artifacts"`
	ArtifactDir    string `mapstructure:"artifact_dir"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type SchedulerConfig struct {
	Timezone   string        `mapstructure:"timezone"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type HealthConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	JSONFormat bool   `mapstructure:"json_format"`
}

// Location resolves the scheduler timezone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SlogLevel maps logging.level to a slog level.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.bot_username", "")
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.required_channel", "")
	v.SetDefault("telegram.free_mode", false)
	v.SetDefault("telegram.polling_timeout", 60)
	v.SetDefault("telegram.request_timeout", "2m")
	v.SetDefault("telegram.rate_per_second", 1.0)
	v.SetDefault("telegram.rate_burst", 5)
	v.SetDefault("membership.ttl", "5m")
	v.SetDefault("membership.size", 500)
	v.SetDefault("hosting.base_url", "https://telegra.ph")
	v.SetDefault("hosting.timeout", "30s")
	v.SetDefault("publish.fetch_timeout", "20s")
	v.SetDefault("image.transform", true)
	v.SetDefault("image.max_dimension", 2560)
	v.SetDefault("image.max_pixels", 50_000_000)
	v.SetDefault("image.jpeg_quality", 85)
	v.SetDefault("image.local_artifacts", false)
	v.SetDefault("image.artifact_dir", "")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.sweep_interval", "10m")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.stale_after", "24h")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "data/bot.db")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("health.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json_format", false)

	// Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/imgshare-bot")

	// Environment variables
	v.SetEnvPrefix("IMGBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found is OK, use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Telegram.RequiredChannel = NormalizeChannel(cfg.Telegram.RequiredChannel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("telegram.admin_ids must contain at least one user ID")
	}
	if c.Telegram.RatePerSecond <= 0 || c.Telegram.RateBurst < 1 {
		return fmt.Errorf("telegram.rate_per_second must be > 0 and telegram.rate_burst >= 1")
	}
	if c.Membership.TTL <= 0 || c.Membership.Size < 1 {
		return fmt.Errorf("membership.ttl must be > 0 and membership.size >= 1")
	}
	if c.Hosting.BaseURL == "" {
		return fmt.Errorf("hosting.base_url is required")
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be between 1 and 100")
	}
	if c.Image.MaxDimension < 1 {
		return fmt.Errorf("image.max_dimension must be positive")
	}
	if c.Image.MaxPixels < 1 {
		return fmt.Errorf("image.max_pixels must be positive")
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	switch c.Storage.Driver {
	case "sqlite", "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, postgres, file")
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535")
	}
	return nil
}

// NormalizeChannel turns "name", "@name" or "https://t.me/name" into "@name".
func NormalizeChannel(ch string) string {
	ch = strings.TrimSpace(ch)
	if ch == "" {
		return ""
	}
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		ch = strings.TrimPrefix(ch, prefix)
	}
	ch = strings.TrimSuffix(ch, "/")
	if !strings.HasPrefix(ch, "@") {
		ch = "@" + ch
	}
	return ch
}
