// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete PuPu store configuration.
type Config struct {
	// Storage configures the durable slot.
	Storage StorageConfig `toml:"storage"`

	// Eviction configures the size budgets.
	Eviction EvictionConfig `toml:"eviction"`

	// Watcher configures the optional slot-file watcher.
	Watcher WatcherConfig `toml:"watcher"`
}

// StorageConfig selects and locates the durable backend.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`

	// Path is the slot file (file backend) or database file (sqlite).
	// Empty means ~/.pupu/chats.json or ~/.pupu/pupu.db.
	Path string `toml:"path"`

	// CoalesceInterval bounds how often streaming callers persist,
	// e.g. "250ms". Zero disables coalescing.
	CoalesceInterval duration `toml:"coalesce_interval"`
}

// EvictionConfig holds the serialized-size budgets.
type EvictionConfig struct {
	// MaxTotalBytes is the hard cap on the serialized store.
	MaxTotalBytes int `toml:"max_total_bytes"`

	// TargetTotalBytes is the soft target eviction aims for.
	TargetTotalBytes int `toml:"target_total_bytes"`

	// MaxActiveMessages bounds the active chat's message list when
	// eviction alone cannot satisfy the hard cap.
	MaxActiveMessages int `toml:"max_active_messages"`
}

// WatcherConfig controls the external-change watcher.
type WatcherConfig struct {
	// Enabled turns on fsnotify watching of the slot file.
	Enabled bool `toml:"enabled"`

	// Debounce is how long to wait after the last change event,
	// e.g. "200ms".
	Debounce duration `toml:"debounce"`
}

// duration wraps time.Duration for TOML decoding of strings like "250ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Original browser-storage budgets: 4.5 MiB hard cap, 4.2 MiB target.
const (
	defaultMaxTotalBytes     = 4718592
	defaultTargetTotalBytes  = 4404019
	defaultMaxActiveMessages = 200
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:          "file",
			CoalesceInterval: duration{250 * time.Millisecond},
		},
		Eviction: EvictionConfig{
			MaxTotalBytes:     defaultMaxTotalBytes,
			TargetTotalBytes:  defaultTargetTotalBytes,
			MaxActiveMessages: defaultMaxActiveMessages,
		},
		Watcher: WatcherConfig{
			Enabled:  false,
			Debounce: duration{200 * time.Millisecond},
		},
	}
}

// CoalesceInterval returns the configured coalescing interval.
func (c *Config) CoalesceInterval() time.Duration {
	return c.Storage.CoalesceInterval.Duration
}

// WatchDebounce returns the configured watcher debounce.
func (c *Config) WatchDebounce() time.Duration {
	return c.Watcher.Debounce.Duration
}

// StoragePath resolves the slot path, applying the home-directory default
// when unset.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	name := "chats.json"
	if c.Storage.Backend == "sqlite" {
		name = "pupu.db"
	}
	return filepath.Join(home, ".pupu", name), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from the default location, applying defaults
// and environment overrides. A missing file yields defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return LoadFrom(filepath.Join(home, ".pupu", "config.toml"))
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies PUPU_* environment variables on top of the
// loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PUPU_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PUPU_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PUPU_MAX_TOTAL_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Eviction.MaxTotalBytes = n
		}
	}
	if v := os.Getenv("PUPU_TARGET_TOTAL_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Eviction.TargetTotalBytes = n
		}
	}
	if v := os.Getenv("PUPU_WATCHER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Watcher.Enabled = b
		}
	}
}

// Validate rejects configurations the store cannot honor.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q (want file or sqlite)", c.Storage.Backend)
	}
	if c.Eviction.MaxTotalBytes <= 0 {
		return fmt.Errorf("max_total_bytes must be positive, got %d", c.Eviction.MaxTotalBytes)
	}
	if c.Eviction.TargetTotalBytes <= 0 || c.Eviction.TargetTotalBytes > c.Eviction.MaxTotalBytes {
		return fmt.Errorf("target_total_bytes must be in (0, max_total_bytes], got %d", c.Eviction.TargetTotalBytes)
	}
	if c.Eviction.MaxActiveMessages <= 0 {
		return fmt.Errorf("max_active_messages must be positive, got %d", c.Eviction.MaxActiveMessages)
	}
	return nil
}
