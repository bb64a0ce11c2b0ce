package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileView is the on-disk shape of Config. Durations are written as Go
// duration strings ("1m0s") so both TOML and YAML stay readable.
type fileView struct {
	DB        string        `toml:"db" yaml:"db"`
	Server    serverView    `toml:"server" yaml:"server"`
	Sync      syncView      `toml:"sync" yaml:"sync"`
	Daemon    daemonView    `toml:"daemon" yaml:"daemon"`
	Dashboard dashboardView `toml:"dashboard" yaml:"dashboard"`
	Log       logView       `toml:"log" yaml:"log"`
}

type serverView struct {
	URL     string `toml:"url" yaml:"url"`
	Token   string `toml:"token" yaml:"token"`
	Timeout string `toml:"timeout" yaml:"timeout"`
}

type syncView struct {
	Pacing     string `toml:"pacing" yaml:"pacing"`
	RetryBase  string `toml:"retry_base" yaml:"retry_base"`
	RetryMax   string `toml:"retry_max" yaml:"retry_max"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	OnCreate   bool   `toml:"on_create" yaml:"on_create"`
	Confirm    string `toml:"confirm" yaml:"confirm"`
}

type daemonView struct {
	Interval string `toml:"interval" yaml:"interval"`
	Debounce string `toml:"debounce" yaml:"debounce"`
}

type dashboardView struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

type logView struct {
	Level string `toml:"level" yaml:"level"`
	File  string `toml:"file" yaml:"file"`
}

func (c *Config) view(redact bool) fileView {
	token := c.Server.Token
	if redact && token != "" {
		token = "********"
	}
	return fileView{
		DB: c.DB,
		Server: serverView{
			URL:     c.Server.URL,
			Token:   token,
			Timeout: c.Server.Timeout.String(),
		},
		Sync: syncView{
			Pacing:     c.Sync.Pacing.String(),
			RetryBase:  c.Sync.RetryBase.String(),
			RetryMax:   c.Sync.RetryMax.String(),
			MaxRetries: c.Sync.MaxRetries,
			OnCreate:   c.Sync.OnCreate,
			Confirm:    c.Sync.Confirm,
		},
		Daemon: daemonView{
			Interval: c.Daemon.Interval.String(),
			Debounce: c.Daemon.Debounce.String(),
		},
		Dashboard: dashboardView{
			Host: c.Dashboard.Host,
			Port: c.Dashboard.Port,
		},
		Log: logView{
			Level: c.Log.Level,
			File:  c.Log.File,
		},
	}
}

// Write saves cfg as TOML at path. An existing file is only replaced when
// overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# quill configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg.view(false)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// The file may hold the server token.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// YAML renders the effective settings for display, with the token masked.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.view(true))
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
