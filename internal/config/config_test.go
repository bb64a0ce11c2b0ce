package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at a temp dir so the
// user's real config and .env never leak into a test.
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, used, err := Load(Options{})
	require.NoError(t, err)
	assert.Empty(t, used)

	assert.Equal(t, filepath.Join(home, ".quill", "quill.db"), cfg.DB)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.Pacing)
	assert.Equal(t, 2*time.Second, cfg.Sync.RetryBase)
	assert.Equal(t, 30*time.Second, cfg.Sync.RetryMax)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.True(t, cfg.Sync.OnCreate)
	assert.Equal(t, "replace", cfg.Sync.Confirm)
	assert.Equal(t, time.Minute, cfg.Daemon.Interval)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)

	path := filepath.Join(home, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
db = "~/articles.db"

[server]
url = "https://file.example/sync"
timeout = "5s"

[sync]
max_retries = 2
`), 0o600))

	t.Setenv("QUILL_SERVER_URL", "https://env.example/sync")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("token", "", "")
	require.NoError(t, flags.Parse([]string{"--token", "from-flag"}))

	cfg, used, err := Load(Options{ConfigFile: path, Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, filepath.Join(home, "articles.db"), cfg.DB, "file value with ~ expanded")
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 2, cfg.Sync.MaxRetries)
	assert.Equal(t, "https://env.example/sync", cfg.Server.URL, "env beats file")
	assert.Equal(t, "from-flag", cfg.Server.Token)
}

func TestLoad_EnvFile(t *testing.T) {
	home := isolate(t)

	// Registered so the variable is unset again after the test.
	t.Setenv("QUILL_DASHBOARD_PORT", "")
	require.NoError(t, os.Unsetenv("QUILL_DASHBOARD_PORT"))

	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("QUILL_DASHBOARD_PORT=9191\n"), 0o600))

	cfg, _, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Dashboard.Port)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	home := isolate(t)

	path := filepath.Join(home, "nope.toml")
	_, _, err := Load(Options{ConfigFile: path})
	assert.Error(t, err)

	cfg, used, err := Load(Options{ConfigFile: path, AllowMissing: true})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, Default().Sync, cfg.Sync)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("QUILL_SYNC_CONFIRM", "sometimes")

	_, _, err := Load(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.confirm")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db", func(c *Config) { c.DB = "" }},
		{"negative pacing", func(c *Config) { c.Sync.Pacing = -time.Second }},
		{"zero debounce", func(c *Config) { c.Daemon.Debounce = 0 }},
		{"negative retries", func(c *Config) { c.Sync.MaxRetries = -1 }},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".quill", "config.toml")

	cfg := Default()
	cfg.Server.URL = "https://example.test/sync"
	cfg.Server.Token = "secret"
	cfg.Sync.Confirm = "in-place"
	cfg.Daemon.Interval = 90 * time.Second

	require.NoError(t, Write(path, cfg, false))
	assert.Error(t, Write(path, cfg, false), "refuses to overwrite")
	require.NoError(t, Write(path, cfg, true))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, used, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, cfg, loaded)
}

func TestYAML_MasksToken(t *testing.T) {
	cfg := Default()
	cfg.Server.Token = "secret"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.Contains(t, string(out), "retry_base: 2s")
	assert.Contains(t, string(out), "********")
}
