package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Primary.MaxOpenConns)
	assert.Equal(t, "info", cfg.Log.Level)

	// A configless serve still collects.
	require.NotNil(t, cfg.Collectors.Autostart)
	assert.True(t, *cfg.Collectors.Autostart)
}

func TestLoadAutostartOptOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collectors:
  autostart: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Collectors.Autostart)
	assert.False(t, *cfg.Collectors.Autostart)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9000
primary:
  dsn: postgres://file/db
log:
  level: debug
`), 0o644))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file.
	assert.Equal(t, "postgres://env/db", cfg.Primary.DSN)
	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
