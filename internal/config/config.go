// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/justestif/playgroup/internal/cycles"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:"127.0.0.1:8080"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	Store       string `envconfig:"STORE" default:"postgres"`

	CycleTZ         string `envconfig:"CYCLE_TZ" default:"UTC"`
	CycleVotingDays int    `envconfig:"CYCLE_VOTING_DAYS" default:"3"`
	CycleCutoffHour int    `envconfig:"CYCLE_CUTOFF_HOUR" default:"20"`
	CycleLengthDays int    `envconfig:"CYCLE_LENGTH_DAYS" default:"6"`

	MaxSubmissionsPerUser   int           `envconfig:"MAX_SUBMISSIONS_PER_USER" default:"3"`
	MinReviewLength         int           `envconfig:"MIN_REVIEW_LENGTH" default:"50"`
	TransitionSweepInterval time.Duration `envconfig:"TRANSITION_SWEEP_INTERVAL" default:"0"`

	AdminToken    string `envconfig:"ADMIN_TOKEN"`
	SpotifyID     string `envconfig:"SPOTIFY_ID"`
	SpotifySecret string `envconfig:"SPOTIFY_SECRET"`

	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	AggregateCacheTTL time.Duration `envconfig:"AGGREGATE_CACHE_TTL" default:"30s"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads an optional .env file, then the environment, and validates the
// result. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads and validates the environment without touching .env.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that envconfig cannot.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	if c.MaxSubmissionsPerUser < 0 {
		return errors.New("config: MAX_SUBMISSIONS_PER_USER must not be negative")
	}
	if c.MinReviewLength < 0 {
		return errors.New("config: MIN_REVIEW_LENGTH must not be negative")
	}
	if c.TransitionSweepInterval < 0 {
		return errors.New("config: TRANSITION_SWEEP_INTERVAL must not be negative")
	}
	_, err := c.Schedule()
	return err
}

// Schedule builds the cycle schedule from the CYCLE_* settings.
func (c Config) Schedule() (cycles.Schedule, error) {
	loc, err := time.LoadLocation(c.CycleTZ)
	if err != nil {
		return cycles.Schedule{}, fmt.Errorf("config: CYCLE_TZ: %w", err)
	}
	s := cycles.Schedule{
		Location:   loc,
		VotingDays: c.CycleVotingDays,
		CutoffHour: c.CycleCutoffHour,
		LengthDays: c.CycleLengthDays,
	}
	if err := s.Validate(); err != nil {
		return cycles.Schedule{}, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// SpotifyEnabled reports whether metadata lookups can reach Spotify.
func (c Config) SpotifyEnabled() bool {
	return c.SpotifyID != "" && c.SpotifySecret != ""
}

// Dev reports whether the process runs in development mode.
func (c Config) Dev() bool {
	return c.AppEnv == "dev"
}
