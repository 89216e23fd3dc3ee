// Package config loads the optional ferry configuration file. Every
// value is a pointer so callers can tell "unset" from "set to the zero
// value"; flags always win over config, config wins over built-in
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Config represents the optional ferry configuration file.
type Config struct {
	Defaults    DefaultsConfig    `toml:"defaults"`
	Behavior    BehaviorConfig    `toml:"behavior"`
	Performance PerformanceConfig `toml:"performance"`
	UI          UIConfig          `toml:"ui"`
}

// DefaultsConfig holds persistent defaults for the transfer flags.
type DefaultsConfig struct {
	Overwrite *string `toml:"overwrite"` // never|always|prompt|smart
	Resume    *bool   `toml:"resume"`
	Verify    *string `toml:"verify"` // none|fast|full
	Parallel  *int    `toml:"parallel"`
	Reflink   *string `toml:"reflink"` // auto|always|never
	Sparse    *bool   `toml:"sparse"`
}

// BehaviorConfig holds transfer behavior toggles.
type BehaviorConfig struct {
	FollowSymlinks *bool `toml:"follow_symlinks"`
	PreserveTimes  *bool `toml:"preserve_times"`
	Atomic         *bool `toml:"atomic"`
}

// PerformanceConfig holds tuning knobs. Sizes are human-readable
// strings ("64MiB", "100MB", or plain bytes).
type PerformanceConfig struct {
	ChunkSize      *string `toml:"chunk_size"`
	ResumeInterval *string `toml:"resume_interval"`
	BWLimit        *string `toml:"bwlimit"`
}

// UIConfig holds presentation preferences.
type UIConfig struct {
	Color    *bool   `toml:"color"`
	Progress *string `toml:"progress"` // auto|bar|plain|quiet
}

// ParseSize converts a human-readable size string to bytes. An empty
// string means unset and yields zero.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ferry", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
