package config

import (
	"fmt"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL     string
	TelegramToken   string // Empty disables the Telegram channel and admin bot
	AdminTelegramID int64
	NotifyChatID    int64 // Chat that receives lifecycle notifications
	LogLevel        string
	Environment     string
	Timezone        string

	CronSpecPromote  string // Daily promotion over the rule table
	CronSpecDispatch string // Notification dispatch cycle

	DispatchBatchSize     int
	DispatchConcurrency   int
	DeliveryTimeout       time.Duration
	StaleClaimAfter       time.Duration
	NotifyMaxRetries      int
	BackoffInitial        time.Duration
	BackoffMax            time.Duration
	BackoffMultiplier     float64
	MilestoneLookbackDays int

	OtelMetricsEnabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("CRON_SPEC_PROMOTE", "0 6 * * *")    // 06:00 daily
	v.SetDefault("CRON_SPEC_DISPATCH", "*/2 * * * *") // every 2 minutes
	v.SetDefault("DISPATCH_BATCH_SIZE", 50)
	v.SetDefault("DISPATCH_CONCURRENCY", 4)
	v.SetDefault("DELIVERY_TIMEOUT", "15s")
	v.SetDefault("STALE_CLAIM_AFTER", "10m")
	v.SetDefault("NOTIFY_MAX_RETRIES", 5)
	v.SetDefault("BACKOFF_INITIAL", "1m")
	v.SetDefault("BACKOFF_MAX", "6h")
	v.SetDefault("BACKOFF_MULTIPLIER", 2.0)
	v.SetDefault("MILESTONE_LOOKBACK_DAYS", 7)
	v.SetDefault("OTEL_METRICS_ENABLED", false)
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Errors are ignored if the file doesn't exist; existing env variables win.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		DatabaseURL:           v.GetString("DATABASE_URL"),
		TelegramToken:         v.GetString("TELEGRAM_TOKEN"),
		AdminTelegramID:       v.GetInt64("ADMIN_TELEGRAM_ID"),
		NotifyChatID:          v.GetInt64("NOTIFY_CHAT_ID"),
		LogLevel:              strings.ToLower(v.GetString("LOG_LEVEL")),
		Environment:           strings.ToLower(v.GetString("ENVIRONMENT")),
		Timezone:              v.GetString("TIMEZONE"),
		CronSpecPromote:       v.GetString("CRON_SPEC_PROMOTE"),
		CronSpecDispatch:      v.GetString("CRON_SPEC_DISPATCH"),
		DispatchBatchSize:     v.GetInt("DISPATCH_BATCH_SIZE"),
		DispatchConcurrency:   v.GetInt("DISPATCH_CONCURRENCY"),
		DeliveryTimeout:       v.GetDuration("DELIVERY_TIMEOUT"),
		StaleClaimAfter:       v.GetDuration("STALE_CLAIM_AFTER"),
		NotifyMaxRetries:      v.GetInt("NOTIFY_MAX_RETRIES"),
		BackoffInitial:        v.GetDuration("BACKOFF_INITIAL"),
		BackoffMax:            v.GetDuration("BACKOFF_MAX"),
		BackoffMultiplier:     v.GetFloat64("BACKOFF_MULTIPLIER"),
		MilestoneLookbackDays: v.GetInt("MILESTONE_LOOKBACK_DAYS"),
		OtelMetricsEnabled:    v.GetBool("OTEL_METRICS_ENABLED"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c *AppConfig) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.TelegramToken != "" {
		if c.AdminTelegramID == 0 {
			return fmt.Errorf("ADMIN_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
		}
		if c.NotifyChatID == 0 {
			return fmt.Errorf("NOTIFY_CHAT_ID is required when TELEGRAM_TOKEN is set")
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.DispatchBatchSize < 1 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive, got %d", c.DispatchBatchSize)
	}
	if c.DispatchConcurrency < 1 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got %d", c.DispatchConcurrency)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive")
	}
	if c.StaleClaimAfter <= c.DeliveryTimeout {
		return fmt.Errorf("STALE_CLAIM_AFTER (%s) must exceed DELIVERY_TIMEOUT (%s)", c.StaleClaimAfter, c.DeliveryTimeout)
	}
	if c.NotifyMaxRetries < 1 {
		return fmt.Errorf("NOTIFY_MAX_RETRIES must be at least 1, got %d", c.NotifyMaxRetries)
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return fmt.Errorf("BACKOFF_INITIAL must be positive and not exceed BACKOFF_MAX")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("BACKOFF_MULTIPLIER must be >= 1, got %v", c.BackoffMultiplier)
	}
	if c.MilestoneLookbackDays < 0 {
		return fmt.Errorf("MILESTONE_LOOKBACK_DAYS must not be negative")
	}
	return nil
}

// Location resolves Timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
