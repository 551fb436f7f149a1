package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the DataForge server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	MaxJobsPerCustomer int
	CooldownSeconds    int
}

type WebhookConfig struct {
	DeliveryTimeout time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("DATAFORGE_PORT", 8080),
			Env:  envString("DATAFORGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			MaxJobsPerCustomer: envInt("RATELIMIT_MAX_JOBS_PER_CUSTOMER", 5),
			CooldownSeconds:    envInt("RATELIMIT_COOLDOWN_SECS", 30),
		},
		Webhook: WebhookConfig{
			DeliveryTimeout: envDurationSecs("WEBHOOK_DELIVERY_TIMEOUT_SECS", 10*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.RateLimit.MaxJobsPerCustomer < 1 {
		return fmt.Errorf("RATELIMIT_MAX_JOBS_PER_CUSTOMER must be at least 1, got %d", c.RateLimit.MaxJobsPerCustomer)
	}
	if c.RateLimit.CooldownSeconds < 1 || c.RateLimit.CooldownSeconds > 60 {
		return fmt.Errorf("RATELIMIT_COOLDOWN_SECS must be between 1 and 60, got %d", c.RateLimit.CooldownSeconds)
	}

	if c.Webhook.DeliveryTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_DELIVERY_TIMEOUT_SECS must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
