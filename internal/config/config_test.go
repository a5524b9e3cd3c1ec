package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config.yaml present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 0.70, cfg.Anthropic.ConfidenceThreshold)
	assert.Equal(t, 1000, cfg.Batch.Limit)
	assert.Equal(t, 10, cfg.Batch.SubBatchSize)
	assert.Equal(t, 500, cfg.Batch.SubBatchDelayMS)
	assert.Equal(t, 50, cfg.Batch.ProgressInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPEEDEX_BATCH_LIMIT", "25")
	t.Setenv("SPEEDEX_STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Batch.Limit)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoad_EnvOnlyKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SPEEDEX_ANTHROPIC_KEY", "sk-test-123")
	t.Setenv("SPEEDEX_STORE_DATABASE_URL", "postgres://localhost/speedex")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.Anthropic.Key)
	assert.Equal(t, "postgres://localhost/speedex", cfg.Store.DatabaseURL)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}
