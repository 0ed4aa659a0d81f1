// Package config loads process configuration from ASYNCFLOW_* environment variables.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jzx17/asyncflow/pkg/pipeline"
	"github.com/jzx17/asyncflow/pkg/worker"
)

// Prefix is prepended to every environment variable name
const Prefix = "ASYNCFLOW"

// Config holds all application configuration.
type Config struct {
	Pipeline PipelineConfig `envconfig:"PIPELINE"`
	Server   ServerConfig   `envconfig:"SERVER"`
	Logging  LogConfig      `envconfig:"LOG"`
}

// PipelineConfig holds worker counts, pacing and failure settings.
type PipelineConfig struct {
	Producers        int           `envconfig:"PRODUCERS" default:"2"`
	Consumers        int           `envconfig:"CONSUMERS" default:"3"`
	ProduceDelayMin  time.Duration `envconfig:"PRODUCE_DELAY_MIN" default:"200ms"`
	ProduceDelayMax  time.Duration `envconfig:"PRODUCE_DELAY_MAX" default:"600ms"`
	ConsumeDelayMin  time.Duration `envconfig:"CONSUME_DELAY_MIN" default:"500ms"`
	ConsumeDelayMax  time.Duration `envconfig:"CONSUME_DELAY_MAX" default:"800ms"`
	ErrorProbability float64       `envconfig:"ERROR_PROBABILITY" default:"0.1"`
	DrainTimeout     time.Duration `envconfig:"DRAIN_TIMEOUT" default:"0s"`
	Seed             int64         `envconfig:"SEED" default:"0"`
}

// ServerConfig holds HTTP dashboard configuration.
type ServerConfig struct {
	Host         string        `envconfig:"HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"PORT" default:"8080"`
	PushInterval time.Duration `envconfig:"PUSH_INTERVAL" default:"250ms"`
}

// Addr returns host:port for net/http
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Producers:        2,
			Consumers:        3,
			ProduceDelayMin:  200 * time.Millisecond,
			ProduceDelayMax:  600 * time.Millisecond,
			ConsumeDelayMin:  500 * time.Millisecond,
			ConsumeDelayMax:  800 * time.Millisecond,
			ErrorProbability: 0.1,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			PushInterval: 250 * time.Millisecond,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// PipelineConfig converts the environment settings into a controller configuration.
// Validation happens in pipeline.New.
func (c *Config) PipelineConfig() *pipeline.Config {
	p := c.Pipeline

	wc := worker.DefaultConfig()
	wc.ProduceDelayMin = p.ProduceDelayMin
	wc.ProduceDelayMax = p.ProduceDelayMax
	wc.ConsumeDelayMin = p.ConsumeDelayMin
	wc.ConsumeDelayMax = p.ConsumeDelayMax
	wc.ErrorProbability = p.ErrorProbability
	wc.Seed = p.Seed

	return &pipeline.Config{
		Worker:           *wc,
		InitialProducers: p.Producers,
		InitialConsumers: p.Consumers,
		DrainTimeout:     p.DrainTimeout,
	}
}
