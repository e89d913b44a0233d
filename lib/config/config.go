// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for workbench
// binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - WORKBENCH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no discovery fallbacks; when neither is present the
// built-in defaults apply. The only expansion performed is ${VAR}
// substitution in paths, for portability of ${HOME}-relative socket
// locations.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the workbench configuration.
type Config struct {
	// Logging configures the daemon's slog output.
	Logging LoggingConfig `yaml:"logging"`

	// Relay configures the connection to the hardware relay service.
	Relay RelayConfig `yaml:"relay"`

	// Modules configures the in-process plugin modules.
	Modules ModulesConfig `yaml:"modules"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// RelayConfig configures the relay client.
type RelayConfig struct {
	// SocketPath is the unix socket of the relay service.
	SocketPath string `yaml:"socket_path"`

	// ReconnectDelay is the fixed backoff between connection
	// attempts, as a Go duration string (e.g. "2s").
	ReconnectDelay string `yaml:"reconnect_delay"`

	// Subscriptions lists source IDs to subscribe to at startup.
	Subscriptions []string `yaml:"subscriptions"`
}

// ModulesConfig configures the plugin layer.
type ModulesConfig struct {
	// TickInterval is the plugin tick period, as a Go duration
	// string (e.g. "20ms").
	TickInterval string `yaml:"tick_interval"`

	// Demo enables the synthetic demo voltage module.
	Demo DemoConfig `yaml:"demo"`
}

// DemoConfig configures the demo module.
type DemoConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the default configuration: info logging, the
// per-user relay socket, 2s reconnect, 20ms ticks, demo module on.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Relay: RelayConfig{
			SocketPath:     filepath.Join(homeDir, ".cache", "workbench", "relay.sock"),
			ReconnectDelay: "2s",
		},
		Modules: ModulesConfig{
			TickInterval: "20ms",
			Demo:         DemoConfig{Enabled: true},
		},
	}
}

// Load loads configuration from the WORKBENCH_CONFIG environment
// variable. Fails if the variable is not set; callers that treat the
// file as optional should check the variable themselves and fall back
// to Default.
func Load() (*Config, error) {
	configPath := os.Getenv("WORKBENCH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WORKBENCH_CONFIG environment variable not set; " +
			"set it to the path of your workbench.yaml, or use the --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults, then expands ${VAR} patterns in paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.SocketPath == "" {
		errs = append(errs, fmt.Errorf("relay.socket_path is required"))
	}
	if c.Relay.ReconnectDelay != "" {
		if _, err := time.ParseDuration(c.Relay.ReconnectDelay); err != nil {
			errs = append(errs, fmt.Errorf("relay.reconnect_delay: %w", err))
		}
	}
	if c.Modules.TickInterval != "" {
		if d, err := time.ParseDuration(c.Modules.TickInterval); err != nil {
			errs = append(errs, fmt.Errorf("modules.tick_interval: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("modules.tick_interval must be positive"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ReconnectDelay returns the parsed reconnect delay, or fallback when
// unset. Call Validate first; unparseable values also yield fallback.
func (c *Config) ReconnectDelay(fallback time.Duration) time.Duration {
	if c.Relay.ReconnectDelay == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Relay.ReconnectDelay)
	if err != nil {
		return fallback
	}
	return d
}

// TickInterval returns the parsed tick interval, or fallback when
// unset or unparseable.
func (c *Config) TickInterval(fallback time.Duration) time.Duration {
	if c.Modules.TickInterval == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Modules.TickInterval)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ParseLevel maps a config level string to a slog.Level. Empty means
// info.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", level)
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	c.Relay.SocketPath = expandVars(c.Relay.SocketPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
