package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points Load at a fresh base dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	for _, key := range []string{
		EnvRefreshInterval, EnvMaxRetries, EnvReplayRate, EnvCacheEnabled,
		EnvProjectID, EnvCredentials, EnvEmulatorHost, EnvProbeAddress,
		EnvLogLevel, EnvLogFormat, EnvTelemetryKey,
	} {
		t.Setenv(key, "")
	}
	t.Chdir(dir)
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Minute, cfg.Sync.RefreshInterval)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.True(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Remote.ProjectID) // in-memory remote
	assert.Equal(t, "8.8.8.8:53", cfg.Connectivity.ProbeAddress)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.BaseDir)
	assert.Equal(t, DefaultConfig().Sync, cfg.Sync)
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	content := `
[sync]
refresh_interval = "10m"
max_retries = 5

[cache]
enabled = false

[remote]
project_id = "kos-prod"

[connectivity]
probe_timeout = "1s"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Sync.RefreshInterval)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, float64(10), cfg.Sync.ReplayRate) // untouched
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "kos-prod", cfg.Remote.ProjectID)
	assert.Equal(t, time.Second, cfg.Connectivity.ProbeTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[remote]\nproject_id = \"from-file\"\n"), 0644))

	t.Setenv(EnvProjectID, "from-env")
	t.Setenv(EnvRefreshInterval, "45m")
	t.Setenv(EnvCacheEnabled, "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Remote.ProjectID)
	assert.Equal(t, 45*time.Minute, cfg.Sync.RefreshInterval)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.Unsetenv(EnvEmulatorHost))
	t.Cleanup(func() { _ = os.Unsetenv(EnvEmulatorHost) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte(EnvEmulatorHost+"=localhost:8080\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.Remote.EmulatorHost)
}

func TestLoad_Invalid(t *testing.T) {
	dir := isolate(t)

	t.Setenv(EnvMaxRetries, "three")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv(EnvMaxRetries, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[sync]\nrefresh_interval = \"soon\"\n"), 0644))
	_, err = Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[sync]\nmax_retries = 0\n"), 0644))
	_, err = Load()
	assert.Error(t, err)
}

func TestGetPaths(t *testing.T) {
	cfg := &Config{BaseDir: "/data"}
	paths := GetPaths(cfg)

	assert.Equal(t, filepath.Join("/data", "cache.db"), paths.Database)
	assert.Equal(t, filepath.Join("/data", "meta.json"), paths.Meta)
	assert.Equal(t, filepath.Join("/data", "config.toml"), paths.Config)
	assert.Equal(t, filepath.Join("/data", "logs"), paths.Logs)
}
