package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Version    string    `yaml:"version"`
	RulesDir   string    `yaml:"rules_dir"`
	Catalogs   []string  `yaml:"catalogs,omitempty"`
	StorageDir string    `yaml:"storage_dir,omitempty"`
	Publish    Publish   `yaml:"publish,omitempty"`
	Schedule   Schedule  `yaml:"schedule,omitempty"`
	Telemetry  Telemetry `yaml:"telemetry,omitempty"`
}

// Publish controls fulfillment change notifications
type Publish struct {
	Buffer int `yaml:"buffer"`
}

// Schedule controls periodic re-aggregation in daemon mode
type Schedule struct {
	Interval time.Duration `yaml:"interval"`
}

// Telemetry holds OTLP export settings
type Telemetry struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.RulesDir == "" {
		return fmt.Errorf("rules_dir is required")
	}
	if c.Publish.Buffer < 0 {
		return fmt.Errorf("publish.buffer must not be negative")
	}
	if c.Schedule.Interval < 0 {
		return fmt.Errorf("schedule.interval must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Publish.Buffer == 0 {
		c.Publish.Buffer = 16
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = 5 * time.Minute
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "assure"
	}
}
