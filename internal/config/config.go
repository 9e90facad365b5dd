// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine configuration
type Config struct {
	// HomeDir is the user home directory all default paths hang off
	HomeDir string `yaml:"-"`
	// RewindDir is the engine's own state directory (~/.rewind)
	RewindDir string `yaml:"-"`
	// ArchivePath is the sqlite database used to archive checkpoint
	// summaries and bundles
	ArchivePath string `yaml:"archive_path"`

	// ShadowDirPrefix names the hidden per-session shadow directory created
	// inside each tracked repository (".rewind" yields ".rewind/<session>")
	ShadowDirPrefix string `yaml:"shadow_dir_prefix"`

	// DiscoveryDepth bounds the directory walk when looking for git roots
	DiscoveryDepth int `yaml:"discovery_depth"`

	// ExcludedDirs are directory names never snapshotted, never cleaned
	// on restore, and skipped during discovery
	ExcludedDirs []string `yaml:"excluded_dirs"`

	// ValidateHistory enables tool_use/tool_result pairing checks on the
	// conversation store
	ValidateHistory bool `yaml:"validate_history"`

	// WatchDebounceMS is the debounce window for repository watchers,
	// in milliseconds
	WatchDebounceMS int `yaml:"watch_debounce_ms"`
}

// WatchDebounce returns the watcher debounce window as a duration
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

// Default returns the built-in configuration
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	rewindDir := filepath.Join(home, ".rewind")

	return &Config{
		HomeDir:         home,
		RewindDir:       rewindDir,
		ArchivePath:     filepath.Join(rewindDir, "checkpoints.db"),
		ShadowDirPrefix: ".rewind",
		DiscoveryDepth:  4,
		ExcludedDirs: []string{
			".git",
			".rewind",
			"node_modules",
			"vendor",
			"target",
			"dist",
			"build",
			".venv",
			"__pycache__",
		},
		ValidateHistory: false,
		WatchDebounceMS: 300,
	}, nil
}

// Load returns the default configuration overlaid with ~/.rewind/config.yaml
// if that file exists
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.RewindDir, 0755); err != nil {
		return nil, err
	}

	path := filepath.Join(cfg.RewindDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFile parses an explicit config file over the defaults
func LoadFile(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// ShadowDir returns the shadow directory for a session inside a repository
func (c *Config) ShadowDir(repoPath, sessionID string) string {
	return filepath.Join(repoPath, c.ShadowDirPrefix, sessionID)
}

// IsExcluded reports whether a directory name is in the exclusion set
func (c *Config) IsExcluded(name string) bool {
	for _, d := range c.ExcludedDirs {
		if name == d {
			return true
		}
	}
	return false
}
