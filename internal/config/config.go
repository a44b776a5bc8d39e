package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"timeuntil/internal/prefs"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultRefreshCron = "*/15 * * * *"
	DefaultLogLevel    = "info"
	DefaultRedisPrefix = "timeuntil:"
)

// StorageConfig selects the prefs backend holding events and widget bindings.
type StorageConfig struct {
	// Backend is one of "file" (default), "sqlite", "redis" or "memory".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the data file for the file and sqlite backends. Relative paths
	// are resolved against the config file's directory.
	Path string `yaml:"path" json:"path"`
	// RedisURL is used by the redis backend, e.g. "redis://localhost:6379/0".
	RedisURL    string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty" json:"redis_prefix,omitempty"`
}

// RemindersConfig toggles the in-process reminder scheduler.
type RemindersConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// CaptureConfig controls PNG snapshots of widget cards after each refresh.
type CaptureConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	// BaseURL is where the headless browser reaches this server. Defaults to
	// http://<listen>.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and widget pages.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to display dates and parse CLI input.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for the periodic widget refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Reminders RemindersConfig `yaml:"reminders" json:"reminders"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPath returns $XDG_CONFIG_HOME/timeuntil/config.yaml, falling back to
// the user config dir reported by the OS.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		d, err := os.UserConfigDir()
		if err != nil {
			return filepath.Join(".", "config.yaml")
		}
		dir = d
	}
	return filepath.Join(dir, "timeuntil", "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      DefaultListen,
		RefreshCron: DefaultRefreshCron,
		LogLevel:    DefaultLogLevel,
		Storage: StorageConfig{
			Backend: prefs.BackendFile,
			Path:    "events.json",
		},
		Reminders: RemindersConfig{Enabled: true},
		Capture: CaptureConfig{
			Enabled:   false,
			OutputDir: "snapshots",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	switch c.Storage.Backend {
	case prefs.BackendFile, prefs.BackendSQLite, prefs.BackendRedis, prefs.BackendMemory:
		// ok
	default:
		// Unknown or empty; fall back to the file backend.
		c.Storage.Backend = prefs.BackendFile
	}
	if c.Storage.Path == "" {
		switch c.Storage.Backend {
		case prefs.BackendSQLite:
			c.Storage.Path = "events.db"
		default:
			c.Storage.Path = "events.json"
		}
	}
	if c.Storage.Backend == prefs.BackendRedis && c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = DefaultRedisPrefix
	}

	if c.Capture.OutputDir == "" {
		c.Capture.OutputDir = "snapshots"
	}
	if c.Capture.BaseURL == "" {
		c.Capture.BaseURL = "http://" + c.Listen
	}
}

// Location resolves Timezone, falling back to time.Local when it is empty
// or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// PrefsOptions converts the storage section into prefs.Options. Relative
// file paths are resolved against baseDir (normally the config file's
// directory).
func (c *Config) PrefsOptions(baseDir string) prefs.Options {
	path := c.Storage.Path
	if path != "" && !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return prefs.Options{
		Backend:     c.Storage.Backend,
		Path:        path,
		RedisURL:    c.Storage.RedisURL,
		RedisPrefix: c.Storage.RedisPrefix,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timeuntil-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
