// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	// AdminAddr is the listen address of the admin HTTP API. Empty disables it.
	AdminAddr string

	TelegramBotToken string
	TelegramChannels []string
	AllowedUsers     []int64
	SiteURL          string

	PosterSchedule     string
	SchedulerAutostart bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/owl.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AdminAddr:        envOrDefault("ADMIN_ADDR", ":8080"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChannels: splitList(os.Getenv("TELEGRAM_CHANNELS")),
		SiteURL:          strings.TrimRight(os.Getenv("SITE_URL"), "/"),
		PosterSchedule:   envOrDefault("POSTER_SCHEDULE", "@every 10m"),
	}
	if cfg.AdminAddr == "off" {
		cfg.AdminAddr = ""
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL %q, use: debug, info, warn, error", cfg.LogLevel)
	}

	for _, s := range splitList(os.Getenv("ALLOWED_USERS")) {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
	}

	if _, err := cron.ParseStandard(cfg.PosterSchedule); err != nil {
		return nil, fmt.Errorf("invalid POSTER_SCHEDULE %q: %w", cfg.PosterSchedule, err)
	}

	cfg.SchedulerAutostart = true
	if raw := os.Getenv("SCHEDULER_AUTOSTART"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_AUTOSTART %q: %w", raw, err)
		}
		cfg.SchedulerAutostart = v
	}

	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
