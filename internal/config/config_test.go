package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3100, cfg.Port)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiration)
	assert.NotEmpty(t, cfg.DatabaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_PORT", "8200")
	t.Setenv("MARKET_TICK_INTERVAL", "30s")
	t.Setenv("MARKET_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8200, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"zero tick interval", func(c *Config) { c.TickInterval = 0 }, "MARKET_TICK_INTERVAL"},
		{"zero body limit", func(c *Config) { c.MaxRequestBodyBytes = 0 }, "MARKET_MAX_REQUEST_BODY_BYTES"},
		{"admin email without password", func(c *Config) { c.AdminEmail = "a@b.c" }, "must be set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(&cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
