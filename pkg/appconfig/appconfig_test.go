package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
backend: simulator
hwconfig_path: ./hwconfig.ini
transaction:
  timeout: 150ms
  retry_count: 5
  poll_interval: 3ms
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appconfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadParsesDocument(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)
	assert.Equal(t, "simulator", cfg.Backend)
	assert.Equal(t, 5, cfg.Transaction.RetryCount)
}

func TestToTransactionSettings(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)

	settings, err := cfg.ToTransactionSettings()
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, settings.Timeout)
	assert.Equal(t, 5, settings.RetryCount)
	assert.Equal(t, 3*time.Millisecond, settings.PollInterval)
}

func TestToTransactionSettingsFallsBackToDefaults(t *testing.T) {
	cfg := Config{}
	settings, err := cfg.ToTransactionSettings()
	require.NoError(t, err)
	assert.Greater(t, settings.Timeout, time.Duration(0))
	assert.Greater(t, settings.RetryCount, 0)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
