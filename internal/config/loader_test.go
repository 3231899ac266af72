package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
password:
  pepper: test-pepper
auth:
  jwt_secret: test-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "todoauth", cfg.App.Name)
	require.Equal(t, ":8080", cfg.Server.HTTPAddr)
	require.Equal(t, 2*time.Second, cfg.DB.QueryTimeout)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 30*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, 168*time.Hour, cfg.Auth.RefreshTTL)
	require.Equal(t, 5, cfg.Auth.MaxAttempts)
	require.Equal(t, 15*time.Minute, cfg.Auth.AttemptsWindow)
	require.Equal(t, uint32(12288), cfg.Password.Memory)
	require.Equal(t, uint32(3), cfg.Password.Iterations)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9999"
password:
  pepper: test-pepper
  iterations: 4
policy:
  min_length: 12
auth:
  jwt_secret: test-secret
  max_attempts: 3
  attempts_window: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.Server.HTTPAddr)
	require.Equal(t, uint32(4), cfg.Password.Iterations)
	require.Equal(t, 3, cfg.Auth.MaxAttempts)
	require.Equal(t, 5*time.Minute, cfg.Auth.AttemptsWindow)
	require.Equal(t, 12, cfg.Policy.AsPolicy().MinLength)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("AUTH_PASSWORD_PEPPER", "env-pepper")
	t.Setenv("AUTH_AUTH_JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-pepper", cfg.Password.Pepper)
	require.Equal(t, "env-secret", cfg.Auth.JWTSecret)

	svc := cfg.AsServiceConfig()
	require.Equal(t, "env-pepper", svc.Password.Pepper.Expose())
	require.Equal(t, "env-secret", svc.JWTSecret.Expose())
	// Printable form never leaks the value.
	require.Equal(t, "[REDACTED]", svc.JWTSecret.String())
}

func TestLoadMissingSecrets(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: test-secret
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "password.pepper")

	path = writeConfig(t, `
password:
  pepper: test-pepper
`)
	_, err = Load(path)
	require.ErrorContains(t, err, "auth.jwt_secret")
}
