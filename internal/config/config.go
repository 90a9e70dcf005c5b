package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ShellConfig selects the interactive shell the session keeps alive.
// An empty Path means the platform default.
type ShellConfig struct {
	Path     string   `yaml:"path,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	Encoding string   `yaml:"encoding,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	RootDir           string            `yaml:"root_dir"`
	LogLevel          string            `yaml:"log_level"`
	SettleDelay       time.Duration     `yaml:"settle_delay"`
	MaxServerRestarts int               `yaml:"max_server_restarts"`
	ProbeTimeout      time.Duration     `yaml:"probe_timeout,omitempty"`
	PollInterval      time.Duration     `yaml:"poll_interval"`
	Shell             ShellConfig       `yaml:"shell"`
	Preferences       map[string]string `yaml:"preferences,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:           DataDir(),
		LogLevel:          "info",
		SettleDelay:       1500 * time.Millisecond,
		MaxServerRestarts: 3,
		PollInterval:      5 * time.Second,
		Preferences:       make(map[string]string),
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "yohub")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "yohub")
}

// DataDir returns the directory the bundled tools are provisioned under.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "yohub")
	}
	if runtime.GOOS != "linux" {
		if dir, err := os.UserConfigDir(); err == nil {
			return filepath.Join(dir, "yohub")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "yohub")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path, returning defaults if it doesn't exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Preferences == nil {
		cfg.Preferences = make(map[string]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay cannot be negative: %s", c.SettleDelay)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout cannot be negative: %s", c.ProbeTimeout)
	}
	if c.MaxServerRestarts < 0 {
		return fmt.Errorf("max_server_restarts cannot be negative: %d", c.MaxServerRestarts)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive: %s", c.PollInterval)
	}
	return nil
}

// ExpandRootDir expands ~ in the root dir path.
func (c *Config) ExpandRootDir() string {
	if len(c.RootDir) > 0 && c.RootDir[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, c.RootDir[1:])
	}
	return c.RootDir
}

// Preference returns a stored preference value.
func (c *Config) Preference(key string) (string, bool) {
	v, ok := c.Preferences[key]
	return v, ok
}

// SetPreference stores a preference value.
func (c *Config) SetPreference(key, value string) {
	if c.Preferences == nil {
		c.Preferences = make(map[string]string)
	}
	c.Preferences[key] = value
}

// UnsetPreference removes a preference. It reports whether the key existed.
func (c *Config) UnsetPreference(key string) bool {
	if _, ok := c.Preferences[key]; !ok {
		return false
	}
	delete(c.Preferences, key)
	return true
}

// PreferenceKeys returns the stored keys in sorted order.
func (c *Config) PreferenceKeys() []string {
	keys := make([]string, 0, len(c.Preferences))
	for k := range c.Preferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
