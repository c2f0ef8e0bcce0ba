// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken  string
	DatabasePath      string
	LogLevel          string
	AdminUsers        []int64
	LinkHost          string
	SweepInterval     time.Duration
	APITimeout        time.Duration
	ChallengeTTL      time.Duration
	BroadcastWorkers  int
	BroadcastInterval time.Duration
	WelcomeChannelURL string
}

// rawEnv mirrors the environment before user IDs are parsed.
type rawEnv struct {
	TelegramBotToken  string        `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	DatabasePath      string        `env:"DATABASE_PATH" envDefault:"./data/bot.db"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	AdminUsers        []string      `env:"ADMIN_USERS" envSeparator:","`
	LinkHost          string        `env:"LINK_HOST" envDefault:"t.me"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	APITimeout        time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	ChallengeTTL      time.Duration `env:"CHALLENGE_TTL" envDefault:"15m"`
	BroadcastWorkers  int           `env:"BROADCAST_WORKERS" envDefault:"8"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"40ms"`
	WelcomeChannelURL string        `env:"WELCOME_CHANNEL_URL"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(environment map[string]string) (*Config, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (*Config, error) {
	var raw rawEnv
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	var admins []int64
	for _, s := range raw.AdminUsers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ADMIN_USERS: %w", s, err)
		}
		admins = append(admins, uid)
	}

	cfg := &Config{
		TelegramBotToken:  raw.TelegramBotToken,
		DatabasePath:      raw.DatabasePath,
		LogLevel:          strings.ToLower(raw.LogLevel),
		AdminUsers:        admins,
		LinkHost:          raw.LinkHost,
		SweepInterval:     raw.SweepInterval,
		APITimeout:        raw.APITimeout,
		ChallengeTTL:      raw.ChallengeTTL,
		BroadcastWorkers:  raw.BroadcastWorkers,
		BroadcastInterval: raw.BroadcastInterval,
		WelcomeChannelURL: raw.WelcomeChannelURL,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of %s", strings.Join(logLevels, ", ")))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("API_TIMEOUT must be positive"))
	}
	if c.ChallengeTTL < 0 {
		errs = append(errs, errors.New("CHALLENGE_TTL must not be negative"))
	}
	if c.BroadcastWorkers <= 0 {
		errs = append(errs, errors.New("BROADCAST_WORKERS must be positive"))
	}
	if c.BroadcastInterval < 0 {
		errs = append(errs, errors.New("BROADCAST_INTERVAL must not be negative"))
	}
	if strings.TrimSpace(c.LinkHost) == "" {
		errs = append(errs, errors.New("LINK_HOST must not be empty"))
	}
	return errors.Join(errs...)
}

// IsAdmin checks whether a user ID belongs to an administrator.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminUsers, userID)
}
