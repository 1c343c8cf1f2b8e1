package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1, cfg.History.MinYears)
	assert.Equal(t, 80, cfg.History.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.History.GetSymbolDelay())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigMergesFiles(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[history]
min_years = 2

[clients.finnhub]
api_key = "base-key"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[clients.finnhub]
api_key = "override-key"
`), 0644))

	cfg, err := LoadConfig(base, override)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2, cfg.History.MinYears)
	assert.Equal(t, "override-key", cfg.Clients.Finnhub.APIKey)
	// untouched defaults survive the merge
	assert.Equal(t, 80, cfg.History.BatchSize)
}

func TestLoadConfigSkipsMissingFiles(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"), "")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XMARKET_ENV", "production")
	t.Setenv("FINNHUB_TOKEN", "env-key")
	t.Setenv("HISTORY_SYMBOL_DELAY", "2.5")
	t.Setenv("HISTORY_WORKER_PRIORITY", "true")
	t.Setenv("XMARKET_POSTGRES_DSN", "postgres://localhost/test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "env-key", cfg.Clients.Finnhub.APIKey)
	assert.Equal(t, 2500*time.Millisecond, cfg.History.GetSymbolDelay())
	assert.True(t, cfg.History.WorkerPriority)
	assert.Equal(t, "postgres://localhost/test", cfg.Database.Postgres.DSN)
}

func TestEnvOverridePrefersPrimaryName(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "primary")
	t.Setenv("FINNHUB_TOKEN", "secondary")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Clients.Finnhub.APIKey)
}

func TestSymbolDelayAcceptsDurationString(t *testing.T) {
	t.Setenv("HISTORY_SYMBOL_DELAY", "750ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.History.GetSymbolDelay())
}

func TestParseTimeout(t *testing.T) {
	assert.Equal(t, 20*time.Second, ParseTimeout("20s", time.Second))
	assert.Equal(t, time.Second, ParseTimeout("garbage", time.Second))
	assert.Equal(t, time.Second, ParseTimeout("", time.Second))
}
