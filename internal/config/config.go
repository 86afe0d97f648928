// Package config loads the service configuration from YAML with defaulting
// and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Compute ComputeConfig `yaml:"compute"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                string  `yaml:"host"`
	Port                int     `yaml:"port"`
	ReadTimeoutSeconds  int     `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int     `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int     `yaml:"idle_timeout_seconds"`
	RateLimitRPS        float64 `yaml:"rate_limit_rps"`
	RateLimitBurst      int     `yaml:"rate_limit_burst"`
}

func (c ServerConfig) ReadTimeout() time.Duration  { return time.Duration(c.ReadTimeoutSeconds) * time.Second }
func (c ServerConfig) WriteTimeout() time.Duration { return time.Duration(c.WriteTimeoutSeconds) * time.Second }
func (c ServerConfig) IdleTimeout() time.Duration  { return time.Duration(c.IdleTimeoutSeconds) * time.Second }

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend               string         `yaml:"backend"` // memory | redis | postgres
	Redis                 RedisConfig    `yaml:"redis"`
	Postgres              PostgresConfig `yaml:"postgres"`
	MaxStoredTrajectories int            `yaml:"max_stored_trajectories"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr             string `yaml:"addr"`
	DB               int    `yaml:"db"`
	ResultTTLSeconds int    `yaml:"result_ttl_seconds"`
}

func (c RedisConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSeconds) * time.Second
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c PostgresConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ComputeConfig holds computation defaults.
type ComputeConfig struct {
	RequestTimeoutSeconds int              `yaml:"request_timeout_seconds"`
	RiskParity            RiskParityConfig `yaml:"risk_parity"`
	Frontier              FrontierConfig   `yaml:"frontier"`
	MonteCarlo            MonteCarloConfig `yaml:"monte_carlo"`
}

func (c ComputeConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RiskParityConfig mirrors the solver knobs exposed in YAML.
type RiskParityConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
}

// FrontierConfig mirrors the frontier sweep knobs exposed in YAML.
type FrontierConfig struct {
	NumPortfolios int     `yaml:"num_portfolios"`
	RiskFreeRate  float64 `yaml:"risk_free_rate"`
}

// MonteCarloConfig mirrors the simulation knobs exposed in YAML.
type MonteCarloConfig struct {
	Workers          int       `yaml:"workers"`
	Percentiles      []float64 `yaml:"percentiles"`
	ConfidenceLevels []float64 `yaml:"confidence_levels"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8080,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 30,
			IdleTimeoutSeconds:  60,
			RateLimitRPS:        50,
			RateLimitBurst:      100,
		},
		Storage: StorageConfig{
			Backend:               "memory",
			MaxStoredTrajectories: 1000,
			Redis:                 RedisConfig{Addr: "localhost:6379"},
			Postgres:              PostgresConfig{TimeoutSeconds: 5},
		},
		Compute: ComputeConfig{
			RequestTimeoutSeconds: 60,
			RiskParity:            RiskParityConfig{MaxIterations: 1000, Tolerance: 1e-10},
			Frontier:              FrontierConfig{NumPortfolios: 20},
			MonteCarlo: MonteCarloConfig{
				Percentiles:      []float64{5, 25, 50, 75, 95},
				ConfidenceLevels: []float64{0.95, 0.99},
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown storage backend %q (want memory, redis, or postgres)", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("postgres backend requires a dsn")
	}
	for _, p := range c.Compute.MonteCarlo.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("percentile %v out of range [0, 100]", p)
		}
	}
	for _, l := range c.Compute.MonteCarlo.ConfidenceLevels {
		if l <= 0 || l >= 1 {
			return fmt.Errorf("confidence level %v out of range (0, 1)", l)
		}
	}
	return nil
}
