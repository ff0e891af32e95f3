package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Plans      PlansConfig      `yaml:"plans"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port" default:":8080"`
	Host string `yaml:"host" default:"localhost"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" default:"sqlite"`
	DSN    string `yaml:"dsn" default:"signal-streamer.db"`
}

// PlansConfig maps plan tier to the default per-minute signal limit applied
// to credentials that do not carry their own.
type PlansConfig struct {
	Free  int `yaml:"free"`
	Pro   int `yaml:"pro"`
	Elite int `yaml:"elite"`
}

// LimitFor returns the per-minute signal limit for a plan tier
func (p PlansConfig) LimitFor(plan string) int {
	switch plan {
	case "pro":
		return p.Pro
	case "elite":
		return p.Elite
	default:
		return p.Free
	}
}

// DispatchConfig represents channel dispatch configuration
type DispatchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" default:"10"`
	MaxConcurrent  int `yaml:"max_concurrent" default:"8"`
}

// EnrichmentConfig represents the optional AI insight configuration. The
// insight call is best-effort; an empty APIKey simply disables it.
type EnrichmentConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" default:"8"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "signal-streamer.db"
	}
	if c.Plans.Free == 0 {
		c.Plans.Free = 5
	}
	if c.Plans.Pro == 0 {
		c.Plans.Pro = 30
	}
	if c.Plans.Elite == 0 {
		c.Plans.Elite = 120
	}
	if c.Dispatch.TimeoutSeconds == 0 {
		c.Dispatch.TimeoutSeconds = 10
	}
	if c.Dispatch.MaxConcurrent == 0 {
		c.Dispatch.MaxConcurrent = 8
	}
	if c.Enrichment.TimeoutSeconds == 0 {
		c.Enrichment.TimeoutSeconds = 8
	}
}
