package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketvet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
sources:
  - id: alpha
    base_price: 100
  - id: beta
    base_price: 100
    skew: 0.02
aggregator:
  priority_ranks:
    alpha: 0.9
pipeline:
  min_confidence: 70
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 70, cfg.Pipeline.MinConfidence)
	assert.Len(t, cfg.Sources, 2)
	assert.Equal(t, 0.9, cfg.Aggregator.PriorityRanks["alpha"])

	// Untouched sections keep their defaults.
	assert.Equal(t, ":8087", cfg.Server.Listen)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Accuracy.MinSamples)
	assert.Equal(t, 100, cfg.Health.WindowSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres"; c.Storage.DSN = "" }},
		{"no sources", func(c *Config) { c.Sources = nil }},
		{"duplicate source id", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }},
		{"non-positive base price", func(c *Config) { c.Sources[0].BasePrice = 0 }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"rank outside range", func(c *Config) { c.Aggregator.PriorityRanks = map[string]float64{"alpha": 1.5} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
