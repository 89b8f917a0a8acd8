package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDatabaseURL = "task_audit.db?_busy_timeout=5000&_txlock=immediate"

// Config keeps runtime settings for the API server and the bot.
type Config struct {
	DatabaseURL    string
	HTTPAddr       string
	JWTSecret      string
	TokenTTL       time.Duration
	TelegramToken  string
	ReportInterval time.Duration
	DigestTime     string
	Location       *time.Location
	AuditorSeed    int64
	HasAuditorSeed bool
	Admin          AdminAccount
}

// AdminAccount is the optional bootstrap administrator.
type AdminAccount struct {
	Username string
	Email    string
	Password string
}

func (a AdminAccount) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv with sane defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	cfg := Config{
		DatabaseURL:    get("DATABASE_URL"),
		HTTPAddr:       get("HTTP_ADDR"),
		JWTSecret:      get("JWT_SECRET"),
		TokenTTL:       parseHours(get("TOKEN_TTL_HOURS")),
		TelegramToken:  get("TELEGRAM_TOKEN"),
		ReportInterval: parseHours(get("REPORT_INTERVAL_HOURS")),
		DigestTime:     get("DIGEST_TIME"),
		Admin: AdminAccount{
			Username: get("ADMIN_USERNAME"),
			Email:    get("ADMIN_EMAIL"),
			Password: get("ADMIN_PASSWORD"),
		},
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	loc, err := time.LoadLocation(get("TIMEZONE"))
	if err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if raw := get("AUDITOR_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid AUDITOR_SEED %q", raw)
		}
		cfg.AuditorSeed = seed
		cfg.HasAuditorSeed = true
	}

	if cfg.Admin.Enabled() && cfg.Admin.Email == "" {
		cfg.Admin.Email = cfg.Admin.Username + "@localhost"
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
