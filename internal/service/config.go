package service

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obskit/metrik/exporter"
	httpexport "github.com/obskit/metrik/exporter/http"
	"github.com/obskit/metrik/health"
)

// Exporter destination types.
const (
	ExporterMemory     = "memory"
	ExporterHTTP       = "http"
	ExporterClickHouse = "clickhouse"
)

// ExporterConfig selects and configures the export destination.
type ExporterConfig struct {
	// Type selects the destination: memory, http or clickhouse.
	// Defaults to memory.
	Type string `yaml:"type"`

	// HTTP configures the HTTP destination.
	HTTP httpexport.Config `yaml:"http"`

	// ClickHouse configures the ClickHouse destination.
	ClickHouse exporter.ClickHouseConfig `yaml:"clickhouse"`

	// Migrate runs the ClickHouse schema migrations on startup.
	Migrate bool `yaml:"migrate"`
}

// Config is the top-level configuration for the metrikd service.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Interval is the periodic collection interval. Defaults to 60s.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one collection cycle. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Exporter configures the export destination.
	Exporter ExporterConfig `yaml:"exporter"`

	// Health configures the Prometheus health metrics server.
	Health health.Config `yaml:"health"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		Exporter: ExporterConfig{
			Type: ExporterMemory,
		},
		Health: health.Config{
			Addr: ":9090",
		},
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and
// consistency.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	switch c.Exporter.Type {
	case ExporterMemory:
	case ExporterHTTP:
		c.Exporter.HTTP.ApplyDefaults()

		if err := c.Exporter.HTTP.Validate(); err != nil {
			return fmt.Errorf("exporter.http: %w", err)
		}
	case ExporterClickHouse:
		c.Exporter.ClickHouse.ApplyDefaults()

		if err := c.Exporter.ClickHouse.Validate(); err != nil {
			return fmt.Errorf("exporter.clickhouse: %w", err)
		}
	default:
		return fmt.Errorf("unknown exporter type %q", c.Exporter.Type)
	}

	return nil
}
