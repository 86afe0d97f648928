package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 1000, cfg.Storage.MaxStoredTrajectories)
	assert.Equal(t, 1000, cfg.Compute.RiskParity.MaxIterations)
	assert.Equal(t, 20, cfg.Compute.Frontier.NumPortfolios)
	assert.Equal(t, []float64{5, 25, 50, 75, 95}, cfg.Compute.MonteCarlo.Percentiles)
	assert.Equal(t, []float64{0.95, 0.99}, cfg.Compute.MonteCarlo.ConfidenceLevels)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  backend: redis
  redis:
    addr: redis.internal:6379
compute:
  frontier:
    num_portfolios: 40
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 40, cfg.Compute.Frontier.NumPortfolios)

	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 1000, cfg.Storage.MaxStoredTrajectories)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"percentile out of range", func(c *Config) { c.Compute.MonteCarlo.Percentiles = []float64{150} }},
		{"confidence out of range", func(c *Config) { c.Compute.MonteCarlo.ConfidenceLevels = []float64{1.5} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestServerConfig_Timeouts(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "10s", cfg.Server.ReadTimeout().String())
	assert.Equal(t, "30s", cfg.Server.WriteTimeout().String())
	assert.Equal(t, "60s", cfg.Compute.RequestTimeout().String())
}
