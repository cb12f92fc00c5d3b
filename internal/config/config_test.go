package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:3000/api", cfg.CollectorURL)
	assert.Equal(t, 180*time.Minute, cfg.IdleThreshold)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
collector_url: https://collector.trackzen.io/api
auth_token: tok-abc
sync_interval: 2m
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://collector.trackzen.io/api", cfg.CollectorURL)
	assert.Equal(t, "tok-abc", cfg.AuthToken)
	assert.Equal(t, 2*time.Minute, cfg.SyncInterval)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 180*time.Minute, cfg.IdleThreshold)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collector_url: [unclosed"), 0600))

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"empty collector url": `collector_url: ""`,
		"empty data dir":      `data_dir: ""`,
		"zero sync interval":  `sync_interval: 0s`,
		"zero timeout":        `request_timeout: 0s`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))

			_, err := Load(path)

			assert.Error(t, err)
		})
	}
}
