// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package config loads cansig settings from a YAML file. Command-line flags
// override whatever the file sets.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MultiTechSystems/can-signal-schema/emit"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

// Config holds the settings of one cansig run.
type Config struct {
	Target  string `yaml:"target"`            // go, c or binary
	Package string `yaml:"package,omitempty"` // Go package or C file basename
	Output  string `yaml:"output"`            // directory for generated files
	Plan    string `yaml:"plan,omitempty"`    // optional CBOR plan artifact path
	Workers int    `yaml:"workers"`           // 0 means GOMAXPROCS

	// ReservedMarkers replaces the built-in reserved name markers when set.
	ReservedMarkers []string `yaml:"reserved_markers,omitempty"`
	// BitNumbering is the default for schemas that do not declare one.
	BitNumbering string `yaml:"bit_numbering"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Target:       string(emit.TargetGo),
		Output:       ".",
		BitNumbering: schema.NumberingDBC,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := emit.ParseTarget(c.Target); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if _, err := schema.ParseNumbering(c.BitNumbering); err != nil {
		return fmt.Errorf("bit_numbering: %w (want dbc or sequential)", err)
	}
	for _, m := range c.ReservedMarkers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("reserved_markers contains an empty marker")
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// ParseLevel maps a level name to a slog level. An empty name is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds the logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
