package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, 24*time.Hour, cfg.TaskTTL)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, time.Second, cfg.StreamInterval)
	assert.Equal(t, "gemini-pro-latest", cfg.Provider.Model)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.Provider.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Empty(t, cfg.Provider.APIKey)

	keys, err := cfg.KeySet()
	require.NoError(t, err)
	assert.Nil(t, keys, "no api_keys setting means auth disabled")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ATLAS_PORT", "9000")
	t.Setenv("ATLAS_PROVIDER_API_KEY", "test-key")
	t.Setenv("ATLAS_PROVIDER_MODEL", "gemini-flash-latest")
	t.Setenv("ATLAS_MAX_CONCURRENT", "2")
	t.Setenv("ATLAS_TASK_TTL", "1h")
	t.Setenv("ATLAS_API_KEYS", `{"tok":{"name":"ci"}}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "test-key", cfg.Provider.APIKey)
	assert.Equal(t, "gemini-flash-latest", cfg.Provider.Model)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, time.Hour, cfg.TaskTTL)

	keys, err := cfg.KeySet()
	require.NoError(t, err)
	require.Contains(t, keys, "tok")
	assert.Equal(t, "ci", keys["tok"].Name)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Metrics.Port = cfg.Port
	assert.Error(t, cfg.Validate(), "metrics port must not collide with the API port")

	cfg = base()
	cfg.MaxConcurrent = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.TaskTTL = 0
	assert.Error(t, cfg.Validate())
}

func TestMalformedKeySetDoesNotFailLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ATLAS_API_KEYS", "not-json")

	// The server must still start; the broken key set surfaces from KeySet
	// so the caller can fall back to running with auth disabled.
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	keys, err := cfg.KeySet()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_keys")
	assert.Nil(t, keys)
}
