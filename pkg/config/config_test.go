package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WORKBENCH_POSTGRES_URL", "postgres://localhost/workbench_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.GeminiModel)
	assert.False(t, cfg.AI.ForceFallback)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Redis.SessionTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKBENCH_POSTGRES_URL", "postgres://db/workbench")
	t.Setenv("WORKBENCH_PORT", "8181")
	t.Setenv("WORKBENCH_AI_FORCE_FALLBACK", "1")
	t.Setenv("WORKBENCH_SESSION_TTL", "24h")
	t.Setenv("WORKBENCH_AUDIT_RETENTION_DAYS", "90")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.True(t, cfg.AI.ForceFallback)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SessionTTL)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "port collision",
			mutate:  func(c *Config) { c.Server.MetricsPort = c.Server.Port },
			wantErr: "must be different",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.AI.Provider = "acme" },
			wantErr: "unsupported AI provider",
		},
		{
			name:    "bad retention",
			mutate:  func(c *Config) { c.Audit.RetentionDays = 0 },
			wantErr: "retention days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WORKBENCH_POSTGRES_URL", "postgres://localhost/workbench_test")
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
