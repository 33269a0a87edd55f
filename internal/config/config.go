// Package config loads runtime settings from YAML over built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/resolver"
	"github.com/pbaille/localrename/internal/scanner"
	"github.com/pbaille/localrename/internal/watcher"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a rename session
type Config struct {
	// PluginKey and StorageKey address the alias mapping in persistence
	PluginKey  string `yaml:"plugin_key"`
	StorageKey string `yaml:"storage_key"`

	// SettleDelay is how long start waits before the first full scan
	SettleDelay time.Duration `yaml:"settle_delay"`

	// RescanDelay is the wait between a settings change and its full scan
	RescanDelay time.Duration `yaml:"rescan_delay"`

	// FallbackInterval repeats full scans while no navigation root is
	// observed. Zero disables it.
	FallbackInterval time.Duration `yaml:"fallback_interval"`

	// Namespace is the known list-item id prefix
	Namespace string `yaml:"namespace"`

	// ItemAttribute is the attribute the incremental scan keys on
	ItemAttribute string `yaml:"item_attribute"`

	RootSelectors []string `yaml:"root_selectors"`
	ScanSelectors []string `yaml:"scan_selectors"`

	// WatchDebounce batches source file events in serve mode
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		PluginKey:        "LocalChannelRename",
		StorageKey:       "renamedChannels",
		SettleDelay:      2 * time.Second,
		RescanDelay:      100 * time.Millisecond,
		FallbackInterval: 5 * time.Second,
		Namespace:        resolver.DefaultNamespace,
		ItemAttribute:    scanner.DefaultItemAttribute,
		RootSelectors:    append([]string(nil), watcher.DefaultRootSelectors...),
		ScanSelectors:    append([]string(nil), scanner.DefaultSelectors...),
		WatchDebounce:    100 * time.Millisecond,
		LogLevel:         "info",
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks keys, delays and that every selector compiles
func (c Config) Validate() error {
	if c.PluginKey == "" || c.StorageKey == "" {
		return fmt.Errorf("config: plugin_key and storage_key are required")
	}
	if c.ItemAttribute == "" {
		return fmt.Errorf("config: item_attribute is required")
	}
	if c.SettleDelay < 0 || c.RescanDelay < 0 || c.FallbackInterval < 0 || c.WatchDebounce < 0 {
		return fmt.Errorf("config: delays must not be negative")
	}
	if len(c.ScanSelectors) == 0 {
		return fmt.Errorf("config: scan_selectors must not be empty")
	}
	if _, err := dom.CompileAll(c.RootSelectors); err != nil {
		return fmt.Errorf("config: root_selectors: %w", err)
	}
	if _, err := dom.CompileAll(c.ScanSelectors); err != nil {
		return fmt.Errorf("config: scan_selectors: %w", err)
	}
	if _, err := dom.Compile("[" + c.ItemAttribute + "]"); err != nil {
		return fmt.Errorf("config: item_attribute: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log level name to slog
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
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
	}
}
