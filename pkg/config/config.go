// Package config loads and persists the tool's settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "twgcal"
	configFile = "config.yaml"
	stateFile  = "correspondences.json"
)

// Config holds user settings. Command-line flags override every field.
type Config struct {
	Calendar  string `yaml:"calendar"`
	Tag       string `yaml:"tag"`
	OrderBy   string `yaml:"order_by"`
	StateFile string `yaml:"state_file"`
}

// DefaultPath returns the default config file location
// (~/.config/twgcal/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", xdgAppName, configFile)
}

// Load reads the config at path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.StateFile = filepath.Join(home, ".config", xdgAppName, stateFile)
		} else {
			c.StateFile = stateFile
		}
	}
}

// Save writes the config to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
