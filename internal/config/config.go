// Package config loads trackd configuration from a YAML file with defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine settings.
type Config struct {
	// CollectorURL is the base URL of the collector API.
	CollectorURL string `yaml:"collector_url"`
	// AuthToken is the bearer token for collector calls. Token issuance
	// and refresh happen elsewhere; trackd only presents it.
	AuthToken string `yaml:"auth_token"`
	// DataDir holds the state database, key file, run file and logs.
	DataDir string `yaml:"data_dir"`
	// IdleThreshold is reported to the host shim for its idle detection.
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	// SyncInterval is the pending-cache flush period.
	SyncInterval time.Duration `yaml:"sync_interval"`
	// RequestTimeout bounds every collector call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		CollectorURL:   "http://localhost:3000/api",
		DataDir:        filepath.Join(home, ".trackd"),
		IdleThreshold:  180 * time.Minute,
		SyncInterval:   5 * time.Minute,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".trackd", "config.yaml")
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CollectorURL == "" {
		return fmt.Errorf("collector_url is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}
