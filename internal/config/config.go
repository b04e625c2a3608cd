// Package config loads famcal settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every recognized option. All values are environment-sourced
// and validated once at startup; nothing re-reads the environment later.
type Config struct {
	// BotToken is the Telegram bot token. It is both the notifier credential
	// and the HMAC key material for init data verification.
	BotToken string `env:"FAMCAL_BOT_TOKEN"`

	// SessionSecret signs session tokens. Independent from BotToken so the
	// two can be rotated separately.
	SessionSecret string `env:"FAMCAL_SESSION_SECRET"`

	// DevBypass disables init data signature/identity enforcement.
	// Non-production only.
	DevBypass bool `env:"FAMCAL_DEV_BYPASS" envDefault:"false"`

	// ScanInterval is the pause between scheduler cycles.
	ScanInterval time.Duration `env:"FAMCAL_SCAN_INTERVAL" envDefault:"15m"`

	DBPath   string `env:"FAMCAL_DB_PATH"   envDefault:"./famcal.db"`
	HTTPAddr string `env:"FAMCAL_HTTP_ADDR" envDefault:":8080"`

	// WebAppURL is the mini-app URL the companion bot hands out.
	WebAppURL string `env:"FAMCAL_WEBAPP_URL"`

	LogLevel string `env:"FAMCAL_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"FAMCAL_LOG_FILE"`
}

// Load parses and validates configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if strings.TrimSpace(c.BotToken) == "" {
		problems = append(problems, "FAMCAL_BOT_TOKEN is required")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		problems = append(problems, "FAMCAL_SESSION_SECRET is required")
	}
	if c.ScanInterval < time.Minute {
		problems = append(problems, "FAMCAL_SCAN_INTERVAL must be at least 1m")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
