package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, "/sse", cfg.HTTP.MountPath)
	assert.Equal(t, "postgres://localhost/bridge", cfg.Database.DSN)
}

func TestLoadMergesUserValuesOverDefaults(t *testing.T) {
	path := writeYAML(t, `
http:
  listen_addr: ":9090"
database:
  dsn: "postgres://user:pass@db/bridge"
  max_open_conns: 25
timers:
  misfire_grace_seconds: 120
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, "/sse", cfg.HTTP.MountPath, "unset fields keep their default")
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 120, cfg.Timers.MisfireGraceSeconds)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := writeYAML(t, `
access_key: "from-yaml"
database:
  dsn: "postgres://from-yaml/bridge"
`)
	t.Setenv("ACCESS_KEY", "from-env")
	t.Setenv("DATABASE_URL", "postgres://from-env/bridge")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AccessKey)
	assert.Equal(t, "postgres://from-env/bridge", cfg.Database.DSN)
}

func TestLoadRejectsMissingDatabaseDSN(t *testing.T) {
	path := writeYAML(t, `http:
  listen_addr: ":8080"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "dsn")
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeYAML(t, "http: [this is not a map")
	_, err := Load(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestValidateAllJoinsMultipleFailures(t *testing.T) {
	cfg := defaults()
	cfg.HTTP.MountPath = "missing-slash"
	cfg.Database.DSN = ""
	cfg.Calendar.FetchTimeoutSeconds = -1

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount_path")
	assert.Contains(t, err.Error(), "dsn")
	assert.Contains(t, err.Error(), "fetch_timeout_seconds")
}
