package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{
		"PORT", "GOOGLE_API_KEY", "GEMINI_MODEL", "GEMINI_TEMPERATURE", "AI_REQUEST_TIMEOUT",
		"RESEARCH_DEFAULT_ENABLED", "RESEARCH_MODEL", "RESEARCH_SEARCH_MODEL", "RESEARCH_TIMEOUT",
		"RESEARCH_MAX_ITERATIONS", "SESSION_MAX", "SESSION_TTL", "UPLOAD_MAX_BYTES", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("SECRETS_FILE", filepath.Join(dir, "secrets.yaml"))
	return dir
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	isolateEnv(t)

	_, err := Load()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GOOGLE_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "env-key", cfg.AI.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Model)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-6)
	assert.EqualValues(t, 1, cfg.AI.CandidateCount)
	assert.False(t, cfg.Research.DefaultEnabled)
	assert.Equal(t, cfg.AI.Model, cfg.Research.Model)
	assert.Equal(t, cfg.Research.Model, cfg.Research.SearchModel)
	assert.Equal(t, 1024, cfg.Session.MaxSessions)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.EqualValues(t, 10<<20, cfg.Upload.MaxBytes)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadReadsAPIKeyFromSecretsFile(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_API_KEY: file-key\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.AI.APIKey)
}

func TestLoadIgnoresNonStringSecrets(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "secrets.yaml")
	content := "GOOGLE_API_KEY: file-key\nretries: 3\ndatabase:\n  host: db\n  port: 5432\ntags: [a, b]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.AI.APIKey)

	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: db\n"), 0o600))
	t.Setenv("GOOGLE_API_KEY", "env-key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.AI.APIKey)
}

func TestLoadEnvKeyWinsOverSecretsFile(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_API_KEY: file-key\n"), 0o600))
	t.Setenv("GOOGLE_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.AI.APIKey)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                     "80 80",
		"GEMINI_TEMPERATURE":       "warm",
		"RESEARCH_DEFAULT_ENABLED": "sometimes",
		"SESSION_TTL":              "forever",
		"RESEARCH_TIMEOUT":         "-5s",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv("GOOGLE_API_KEY", "k")
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadServerConfigAcceptsHostPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", server.Addr)
}

func TestLoadSessionConfigClampsMax(t *testing.T) {
	t.Setenv("SESSION_MAX", "0")
	t.Setenv("SESSION_TTL", "")

	cfg, err := loadSessionConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxSessions)
}
