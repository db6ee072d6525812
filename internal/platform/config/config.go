package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Comma-separated origins allowed to open tally streams besides APP_URL.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	// Both optional. Without DATABASE_URL polls live in process memory;
	// without REDIS_URL votes serialize per process and snapshots stay local.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	SentryDSN string `env:"SENTRY_DSN"`

	VoteMaxAttempts       int           `env:"VOTE_MAX_ATTEMPTS" default:"5"`
	VoteInitialBackoff    time.Duration `env:"VOTE_INITIAL_BACKOFF" default:"5ms"`
	VoteLockTTL           time.Duration `env:"VOTE_LOCK_TTL" default:"5s"`
	MaxSubscribersPerPoll int           `env:"MAX_SUBSCRIBERS_PER_POLL" default:"1000"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"40"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether local origins should be trusted.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// StreamOrigins lists APP_URL followed by every ALLOWED_ORIGINS entry.
func (c *Config) StreamOrigins() []string {
	origins := []string{c.AppURL}
	for o := range strings.SplitSeq(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}

	if cfg.VoteMaxAttempts < 1 {
		return fmt.Errorf("VOTE_MAX_ATTEMPTS must be at least 1, got %d", cfg.VoteMaxAttempts)
	}
	if cfg.VoteInitialBackoff <= 0 {
		return errors.New("VOTE_INITIAL_BACKOFF must be positive")
	}
	if cfg.VoteLockTTL < time.Second {
		return fmt.Errorf("VOTE_LOCK_TTL must be at least 1s, got %s", cfg.VoteLockTTL)
	}
	if cfg.MaxSubscribersPerPoll < 1 {
		return fmt.Errorf("MAX_SUBSCRIBERS_PER_POLL must be at least 1, got %d", cfg.MaxSubscribersPerPoll)
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst < 1 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	if cfg.DatabaseURL != "" && !hasScheme(cfg.DatabaseURL, "postgres", "postgresql") {
		return errors.New("DATABASE_URL must use the postgres:// scheme")
	}
	if cfg.RedisURL != "" && !hasScheme(cfg.RedisURL, "redis", "rediss") {
		return errors.New("REDIS_URL must use the redis:// or rediss:// scheme")
	}

	if cfg.AppEnv == "production" && cfg.DatabaseURL != "" {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}
