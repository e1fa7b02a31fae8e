// Package config loads and validates the composed application configuration.
// Component packages own their tuning structs; this package only assembles
// them and adds the process-level concerns (logging, server, storage).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marketvet/marketvet/internal/accuracy"
	"github.com/marketvet/marketvet/internal/aggregator"
	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/pipeline"
)

// Config is the full application configuration tree.
type Config struct {
	Log        LogConfig         `yaml:"log"`
	Server     ServerConfig      `yaml:"server"`
	Redis      RedisConfig       `yaml:"redis"`
	Storage    StorageConfig     `yaml:"storage"`
	Sources    []SourceConfig    `yaml:"sources"`
	Aggregator aggregator.Config `yaml:"aggregator"`
	Accuracy   accuracy.Config   `yaml:"accuracy"`
	Health     health.Config     `yaml:"health"`
	Pipeline   pipeline.Config   `yaml:"pipeline"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig enables the shared series cache tier.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig selects the accuracy persistence backend.
type StorageConfig struct {
	Backend string        `yaml:"backend"` // "file" or "postgres"
	Path    string        `yaml:"path"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// SourceConfig declares one market data source. Simulated sources are the
// only shipped binding; a real exchange source would add fields here.
type SourceConfig struct {
	ID        string  `yaml:"id"`
	BasePrice float64 `yaml:"base_price"`
	Skew      float64 `yaml:"skew"`
}

// Default returns a runnable configuration with three disagreement-free
// simulated sources.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Listen:          ":8087",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "data/accuracy.json",
			Timeout: 5 * time.Second,
		},
		Sources: []SourceConfig{
			{ID: "alpha", BasePrice: 50000},
			{ID: "beta", BasePrice: 50000},
			{ID: "gamma", BasePrice: 50000},
		},
		Aggregator: aggregator.DefaultConfig(),
		Accuracy:   accuracy.DefaultConfig(),
		Health:     health.DefaultConfig(),
		Pipeline:   pipeline.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. Absent fields keep their default
// values.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must be set for the file backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of file, postgres", c.Storage.Backend)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source id must be set")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if s.BasePrice <= 0 {
			return fmt.Errorf("source %s: base_price must be positive", s.ID)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	for id, rank := range c.Aggregator.PriorityRanks {
		if rank < 0 || rank > 1 {
			return fmt.Errorf("aggregator.priority_ranks[%s] = %.2f outside [0,1]", id, rank)
		}
	}
	return nil
}
