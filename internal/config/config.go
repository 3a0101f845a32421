// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the farewatch engine.
type Config struct {
	// HTTP API
	HTTPAddr string

	// Scheduling
	MinCheckInterval  time.Duration
	SideEffectTimeout time.Duration

	// Estimation
	LongHaulRoutes []string
	PopularRoutes  []string
	PriceSignalPct float64

	// Live quote feed
	QuoteFeedWSURL    string
	QuoteMaxAge       time.Duration
	QuotePollInterval time.Duration

	// Fare search provider
	SerpAPIKey      string
	SerpAPIBaseURL  string
	ProviderTimeout time.Duration
	ProviderRetries int
	ProviderBackoff time.Duration

	// Alerting
	DiscordWebhookURL   string
	WebhookAllowedHosts []string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPSender        string

	// Persistence
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string
	KafkaBrokers  []string
	KafkaTopic    string

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		MinCheckInterval:  time.Duration(getEnvInt("MIN_CHECK_INTERVAL_MINUTES", 60)) * time.Minute,
		SideEffectTimeout: time.Duration(getEnvInt("SIDE_EFFECT_TIMEOUT_SECONDS", 10)) * time.Second,

		LongHaulRoutes: getEnvList("LONG_HAUL_ROUTES", nil),
		PopularRoutes:  getEnvList("POPULAR_ROUTES", nil),
		PriceSignalPct: getEnvFloat("PRICE_SIGNAL_PCT", 0.05),

		QuoteFeedWSURL:    getEnv("QUOTE_FEED_WS_URL", ""),
		QuoteMaxAge:       time.Duration(getEnvInt("QUOTE_MAX_AGE_MINUTES", 30)) * time.Minute,
		QuotePollInterval: time.Duration(getEnvInt("QUOTE_POLL_MINUTES", 30)) * time.Minute,

		SerpAPIKey:      getEnv("SERPAPI_KEY", ""),
		SerpAPIBaseURL:  getEnv("SERPAPI_BASE_URL", "https://serpapi.com"),
		ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 20)) * time.Second,
		ProviderRetries: getEnvInt("PROVIDER_RETRIES", 2),
		ProviderBackoff: time.Duration(getEnvInt("PROVIDER_BACKOFF_MS", 400)) * time.Millisecond,

		DiscordWebhookURL:   getEnv("DISCORD_WEBHOOK_URL", ""),
		WebhookAllowedHosts: getEnvList("WEBHOOK_ALLOWED_HOSTS", []string{"discord.com", "discordapp.com"}),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvInt("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASS", ""),
		SMTPSender:        getEnv("SMTP_SENDER", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		KafkaBrokers:  getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "farewatch.monitor-events"),

		EnableTUI:     getEnvBool("ENABLE_TUI", false),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	if c.MinCheckInterval < time.Minute {
		return fmt.Errorf("MIN_CHECK_INTERVAL_MINUTES must be at least 1")
	}

	if c.SideEffectTimeout <= 0 {
		return fmt.Errorf("SIDE_EFFECT_TIMEOUT_SECONDS must be positive")
	}

	if c.PriceSignalPct <= 0 || c.PriceSignalPct >= 1 {
		return fmt.Errorf("PRICE_SIGNAL_PCT must be between 0 and 1")
	}

	if c.QuotePollInterval < time.Minute {
		return fmt.Errorf("QUOTE_POLL_MINUTES must be at least 1")
	}

	if c.ProviderRetries < 0 {
		return fmt.Errorf("PROVIDER_RETRIES must not be negative")
	}

	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// EmailEnabled reports whether SMTP delivery is fully configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != "" && c.SMTPSender != ""
}

// MaskedSerpAPIKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedSerpAPIKey() string {
	return maskSecret(c.SerpAPIKey)
}

// MaskedDiscordWebhook returns the webhook URL with most characters hidden for logging.
func (c *Config) MaskedDiscordWebhook() string {
	return maskSecret(c.DiscordWebhookURL)
}

// MaskedPostgresDSN returns the DSN with most characters hidden for logging.
func (c *Config) MaskedPostgresDSN() string {
	return maskSecret(c.PostgresDSN)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable or returns a default.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
