package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
	RedisURL    string `env:"REDIS_URL"`

	// Slack
	SlackBotToken      string `env:"SLACK_BOT_TOKEN"`
	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET"`
	SlackAPIURL        string `env:"SLACK_API_URL"`

	// OperatorPublicKey is the base64 ed25519 key that signs trigger and
	// admin requests. Empty disables signature checks outside production.
	OperatorPublicKey string `env:"OPERATOR_PUBLIC_KEY"`

	// Rounds
	CallTimeout         time.Duration `env:"CALL_TIMEOUT" envDefault:"10s"`
	AnnounceConcurrency int           `env:"ANNOUNCE_CONCURRENCY" envDefault:"4"`
	HistoryWindow       time.Duration `env:"HISTORY_WINDOW"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on invalid values or, in production, on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Parse reads and validates configuration from the process environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	whitelist := cfg.RateLimitWhitelist[:0]
	for _, entry := range cfg.RateLimitWhitelist {
		if entry = strings.TrimSpace(entry); entry != "" {
			whitelist = append(whitelist, entry)
		}
	}
	cfg.RateLimitWhitelist = whitelist

	if cfg.CallTimeout <= 0 {
		return nil, errors.New("CALL_TIMEOUT must be positive")
	}
	if cfg.AnnounceConcurrency < 1 {
		return nil, errors.New("ANNOUNCE_CONCURRENCY must be at least 1")
	}

	// In production, require the durable store, the lock and the Slack credentials
	if cfg.Env == "production" {
		required := map[string]string{
			"DATABASE_URL":         cfg.DatabaseURL,
			"REDIS_URL":            cfg.RedisURL,
			"SLACK_BOT_TOKEN":      cfg.SlackBotToken,
			"SLACK_SIGNING_SECRET": cfg.SlackSigningSecret,
			"OPERATOR_PUBLIC_KEY":  cfg.OperatorPublicKey,
		}
		for _, name := range []string{"DATABASE_URL", "REDIS_URL", "SLACK_BOT_TOKEN", "SLACK_SIGNING_SECRET", "OPERATOR_PUBLIC_KEY"} {
			if required[name] == "" {
				return nil, fmt.Errorf("%s is required in production", name)
			}
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
