// Package config loads datapipe settings from an optional YAML file and
// DATAPIPE_-prefixed environment variables. Environment variables win.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/datapipe/internal/data"
	"github.com/roach88/datapipe/internal/pipeline"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DATAPIPE_"

// Config holds the runtime settings of the CLI.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// MemoryThreshold is the resident payload size in bytes above which
	// arrays move out of core after each node. Zero disables spilling.
	MemoryThreshold uint64 `yaml:"memory_threshold" env:"MEMORY_THRESHOLD"`

	// OutOfCoreURL is where spilled payloads go. Any afs URL works.
	OutOfCoreURL string `yaml:"out_of_core_url" env:"OUT_OF_CORE_URL"`

	// RenameDetection rewrites downstream path arguments when a node's
	// output is renamed between preflights.
	RenameDetection bool `yaml:"rename_detection" env:"RENAME_DETECTION"`

	Tracing Tracing `yaml:"tracing" envPrefix:"TRACING_"`
}

// Tracing configures the OTLP trace exporter.
type Tracing struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel:        "info",
		OutOfCoreURL:    filepath.Join(os.TempDir(), "datapipe-spill"),
		RenameDetection: true,
	}
}

// Load reads path, when set, over the defaults and then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that decode fine but cannot be used.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MemoryThreshold > 0 && c.OutOfCoreURL == "" {
		return errors.New("memory_threshold is set but out_of_core_url is empty")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.New("tracing is enabled but tracing.endpoint is empty")
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// PipelineOptions translates the settings into pipeline options.
func (c Config) PipelineOptions() []pipeline.Option {
	opts := []pipeline.Option{pipeline.WithRenameDetection(c.RenameDetection)}
	if c.MemoryThreshold > 0 {
		opts = append(opts, pipeline.WithSpiller(data.NewSpiller(c.OutOfCoreURL, c.MemoryThreshold)))
	}
	return opts
}
