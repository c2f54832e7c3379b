package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SENTRY_ACCESS_TOKEN_SECRET", "")
	t.Setenv("SENTRY_REFRESH_TOKEN_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "api", cfg.Mode)
	require.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	require.NotEmpty(t, cfg.AccessTokenSecret)
	require.NotEqual(t, cfg.AccessTokenSecret, cfg.RefreshTokenSecret)
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}
