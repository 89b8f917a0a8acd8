package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Hour, cfg.ReportInterval)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.False(t, cfg.BotEnabled())
	assert.False(t, cfg.HasAuditorSeed)
	assert.False(t, cfg.Admin.Enabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"JWT_SECRET":            "s3cret",
		"DATABASE_URL":          " :memory: ",
		"HTTP_ADDR":             "127.0.0.1:9000",
		"TOKEN_TTL_HOURS":       "2",
		"TELEGRAM_TOKEN":        "123:abc",
		"REPORT_INTERVAL_HOURS": "1.5",
		"DIGEST_TIME":           "09:00",
		"TIMEZONE":              "Europe/Moscow",
		"AUDITOR_SEED":          "42",
		"ADMIN_USERNAME":        "root",
		"ADMIN_PASSWORD":        "supersecret",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.BotEnabled())
	assert.Equal(t, 90*time.Minute, cfg.ReportInterval)
	assert.Equal(t, "09:00", cfg.DigestTime)
	assert.Equal(t, "Europe/Moscow", cfg.Location.String())
	assert.True(t, cfg.HasAuditorSeed)
	assert.Equal(t, int64(42), cfg.AuditorSeed)
	assert.True(t, cfg.Admin.Enabled())
	assert.Equal(t, "root@localhost", cfg.Admin.Email)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad seed", map[string]string{"JWT_SECRET": "x", "AUDITOR_SEED": "abc"}},
		{"bad timezone", map[string]string{"JWT_SECRET": "x", "TIMEZONE": "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envFrom(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestParseHours(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseHours(""))
	assert.Equal(t, time.Duration(0), parseHours("-3"))
	assert.Equal(t, time.Duration(0), parseHours("soon"))
	assert.Equal(t, 3*time.Hour, parseHours("3"))
}
