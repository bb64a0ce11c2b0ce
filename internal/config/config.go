// Package config loads quill settings from flags, QUILL_* environment
// variables (optionally from a .env file), a TOML config file and defaults,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/quillpress/quill/internal/logging"
)

// EnvPrefix prefixes every environment variable, e.g. QUILL_SERVER_URL.
const EnvPrefix = "QUILL"

// Config holds every quill setting.
type Config struct {
	DB        string          `mapstructure:"db"`
	Server    ServerConfig    `mapstructure:"server"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig describes the sync endpoint.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Pacing     time.Duration `mapstructure:"pacing"`
	RetryBase  time.Duration `mapstructure:"retry_base"`
	RetryMax   time.Duration `mapstructure:"retry_max"`
	MaxRetries int           `mapstructure:"max_retries"`
	OnCreate   bool          `mapstructure:"on_create"`
	Confirm    string        `mapstructure:"confirm"`
}

// DaemonConfig tunes `quill daemon`.
type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DashboardConfig tunes `quill dashboard`.
type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig selects log level and destination.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile overrides the default ~/.quill/config.toml.
	ConfigFile string

	// AllowMissing accepts a ConfigFile that does not exist yet.
	AllowMissing bool

	// EnvFile is loaded into the environment first (default ".env").
	// A missing file is not an error.
	EnvFile string

	// Flags, when set, override every other source for the flags in
	// FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"db":        "db",
	"server":    "server.url",
	"token":     "server.token",
	"log-level": "log.level",
	"log-file":  "log.file",
}

// Dir returns ~/.quill.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quill"
	}
	return filepath.Join(home, ".quill")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DB: filepath.Join(Dir(), "quill.db"),
		Server: ServerConfig{
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			Pacing:     200 * time.Millisecond,
			RetryBase:  2 * time.Second,
			RetryMax:   30 * time.Second,
			MaxRetries: 5,
			OnCreate:   true,
			Confirm:    "replace",
		},
		Daemon: DaemonConfig{
			Interval: time.Minute,
			Debounce: 500 * time.Millisecond,
		},
		Dashboard: DashboardConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves the effective configuration.
func Load(opts Options) (*Config, string, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	used := ""
	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) || (explicit && !opts.AllowMissing) {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		used = path
	}

	if opts.Flags != nil {
		for flag, key := range FlagKeys {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("failed to bind flag --%s: %w", flag, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DB = expandHome(cfg.DB)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, used, nil
}

// Validate checks value ranges. The server URL is checked by the commands
// that need it.
func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("db path cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"server.timeout":  c.Server.Timeout,
		"sync.pacing":     c.Sync.Pacing,
		"sync.retry_base": c.Sync.RetryBase,
		"sync.retry_max":  c.Sync.RetryMax,
		"daemon.interval": c.Daemon.Interval,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative (got %s)", name, d)
		}
	}
	if c.Daemon.Debounce <= 0 {
		return fmt.Errorf("daemon.debounce must be positive (got %s)", c.Daemon.Debounce)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative (got %d)", c.Sync.MaxRetries)
	}
	switch c.Sync.Confirm {
	case "replace", "in-place":
	default:
		return fmt.Errorf("sync.confirm must be \"replace\" or \"in-place\" (got %q)", c.Sync.Confirm)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("db", d.DB)
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.token", d.Server.Token)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("sync.pacing", d.Sync.Pacing)
	v.SetDefault("sync.retry_base", d.Sync.RetryBase)
	v.SetDefault("sync.retry_max", d.Sync.RetryMax)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.on_create", d.Sync.OnCreate)
	v.SetDefault("sync.confirm", d.Sync.Confirm)
	v.SetDefault("daemon.interval", d.Daemon.Interval)
	v.SetDefault("daemon.debounce", d.Daemon.Debounce)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
