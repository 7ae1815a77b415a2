// Package config loads the YAML configuration of the surfaces tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/surfaces/internal/store"
)

// DefaultPath is read when no --config flag is given and the file exists.
const DefaultPath = "surfaces.yaml"

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Collect CollectConfig `yaml:"collect"`
	Server  ServerConfig  `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CollectConfig struct {
	Patience    int    `yaml:"patience"`
	RoundBudget int    `yaml:"round_budget"`
	Concurrent  int    `yaml:"concurrent"`
	WarmStart   bool   `yaml:"warm_start"`
	TraceDir    string `yaml:"trace_dir"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "json"},
		Store:   StoreConfig{Driver: store.DriverSQLite, DSN: filepath.Join(".", "data", "surfaces.db")},
		Collect: CollectConfig{Patience: 3, WarmStart: true},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults. An empty path tries DefaultPath and
// falls back to the defaults when it does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: must be json or text, got %q", c.Log.Format)
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres, store.DriverFS:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn: cannot be empty")
	}
	if c.Collect.Patience < 0 {
		return fmt.Errorf("collect.patience: must be >= 0, got %d", c.Collect.Patience)
	}
	if c.Collect.RoundBudget < 0 {
		return fmt.Errorf("collect.round_budget: must be >= 0, got %d", c.Collect.RoundBudget)
	}
	if c.Collect.Concurrent < 0 {
		return fmt.Errorf("collect.concurrent: must be >= 0, got %d", c.Collect.Concurrent)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr: cannot be empty")
	}
	return nil
}
