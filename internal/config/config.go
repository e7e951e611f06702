// Package config loads swiftserve's settings from a YAML file, a dotenv
// file next to it, and SWIFTSERVE_* environment variables, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the in-memory representation of swiftserve.yaml.
type Config struct {
	// Datasets maps dataset aliases to snapshot paths.
	Datasets map[string]string `yaml:"datasets,omitempty"`

	// MaxMaskSize caps the rows a masked read may request. Zero means no
	// limit.
	MaxMaskSize int `yaml:"max_mask_size,omitempty"`

	// MetadataCacheSize is the number of metadata objects kept in memory.
	MetadataCacheSize int `yaml:"metadata_cache_size,omitempty"`

	HDF5 HDF5Config `yaml:"hdf5,omitempty"`
	Log  LogConfig  `yaml:"log,omitempty"`
}

// HDF5Config controls how snapshot files are opened.
type HDF5Config struct {
	SharedLock  bool          `yaml:"shared_lock,omitempty"`
	LockTimeout time.Duration `yaml:"lock_timeout,omitempty"`
	ReadAhead   bool          `yaml:"read_ahead,omitempty"`
}

// LogConfig selects the log level and line format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Log formats.
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Dir returns the absolute path to ~/.swiftserve/.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".swiftserve"), nil
}

// DefaultPath returns the absolute path to ~/.swiftserve/swiftserve.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "swiftserve.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Datasets:          map[string]string{},
		MetadataCacheSize: 128,
		HDF5: HDF5Config{
			SharedLock:  true,
			LockTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatLogfmt,
		},
	}
}

// Load reads the config file at path over the defaults, then applies the
// dotenv file in the same directory and the process environment. An empty
// path loads DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	dotenv, err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup(dotenv)); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize expands dataset paths and checks field values.
func (c *Config) normalize() error {
	for alias, p := range c.Datasets {
		if alias == "" {
			return fmt.Errorf("dataset with empty alias maps to %q", p)
		}
		expanded, err := ExpandPath(p)
		if err != nil {
			return err
		}
		c.Datasets[alias] = expanded
	}
	if c.MaxMaskSize < 0 {
		return fmt.Errorf("max_mask_size must not be negative, got %d", c.MaxMaskSize)
	}
	if c.MetadataCacheSize <= 0 {
		return fmt.Errorf("metadata_cache_size must be positive, got %d", c.MetadataCacheSize)
	}
	if c.HDF5.LockTimeout < 0 {
		return fmt.Errorf("hdf5.lock_timeout must not be negative, got %s", c.HDF5.LockTimeout)
	}
	switch c.Log.Format {
	case FormatLogfmt, FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Save marshals cfg and writes it to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
