// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and credential handling for
// dashchat.
//
// Configuration is TOML with environment variable overrides:
//   - ~/.dashchat/config.toml
//   - DASHCHAT_SERVER_URL, DASHCHAT_TOKEN, DASHCHAT_TOKEN_FILE,
//     DASHCHAT_DASHBOARD
//   - Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete dashchat configuration.
type Config struct {
	// ServerURL is the base URL of the dashboard server.
	ServerURL string `toml:"server_url"`

	// DashboardID is the default dashboard whose chat opens on start.
	DashboardID string `toml:"dashboard_id"`

	// Token is a static bearer credential. Optional: requests are sent
	// without an Authorization header when neither Token nor TokenFile
	// yields one.
	Token string `toml:"token"`

	// TokenFile is a file the credential is read from. Changes to the file
	// are picked up without restart.
	TokenFile string `toml:"token_file"`

	// RequestsPerMinute caps how often new chat streams may be opened.
	// Zero disables the limiter.
	RequestsPerMinute int `toml:"requests_per_minute"`

	// UI holds terminal UI settings.
	UI UIConfig `toml:"ui"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Markdown renders finalized assistant answers through glamour.
	Markdown bool `toml:"markdown"`

	// WordWrap is the render width for markdown output.
	WordWrap int `toml:"word_wrap"`

	// ShowSources lists citation sources under completed answers.
	ShowSources bool `toml:"show_sources"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		ServerURL:         "http://localhost:8000",
		RequestsPerMinute: 0,
		UI: UIConfig{
			Markdown:    true,
			WordWrap:    80,
			ShowSources: true,
		},
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Dir returns the dashchat configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".dashchat"), nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration from the default path, applying defaults,
// file values, and environment overrides in that order. A missing file is
// not an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("DASHCHAT_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("DASHCHAT_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("DASHCHAT_TOKEN_FILE"); v != "" {
		c.TokenFile = v
	}
	if v := os.Getenv("DASHCHAT_DASHBOARD"); v != "" {
		c.DashboardID = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url %q is not a valid URL", c.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server_url scheme %q is not supported", u.Scheme)
	}
	if c.RequestsPerMinute < 0 {
		return errors.New("requests_per_minute must not be negative")
	}
	if c.UI.WordWrap < 0 {
		return errors.New("ui.word_wrap must not be negative")
	}
	return nil
}

// Save writes the configuration to the default path, creating the directory
// if needed.
func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.toml")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
