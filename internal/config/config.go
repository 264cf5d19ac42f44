// Package config loads the tracker configuration from YAML with environment
// overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/perpscan/perpscan/internal/store"
)

// Config is the full tracker configuration.
type Config struct {
	HTTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`

	Primary store.Config `yaml:"primary"`
	Unified store.Config `yaml:"unified"`

	Collectors struct {
		// Autostart launches every collector on serve. Defaults to true; set
		// it to false (or pass --no-collectors) for a query-only process.
		Autostart *bool `yaml:"autostart"`
	} `yaml:"collectors"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads the YAML config file. A missing path yields pure defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Host == "" {
		c.HTTP.Host = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}

	def := store.DefaultConfig()
	if c.Primary.MaxOpenConns == 0 {
		c.Primary.MaxOpenConns = def.MaxOpenConns
	}
	if c.Primary.MaxIdleConns == 0 {
		c.Primary.MaxIdleConns = def.MaxIdleConns
	}
	if c.Primary.ConnMaxLifetime == 0 {
		c.Primary.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if c.Primary.QueryTimeout == 0 {
		c.Primary.QueryTimeout = def.QueryTimeout
	}
	if c.Unified.MaxOpenConns == 0 {
		c.Unified.MaxOpenConns = def.MaxOpenConns
	}
	if c.Unified.MaxIdleConns == 0 {
		c.Unified.MaxIdleConns = def.MaxIdleConns
	}
	if c.Unified.ConnMaxLifetime == 0 {
		c.Unified.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if c.Unified.QueryTimeout == 0 {
		c.Unified.QueryTimeout = def.QueryTimeout
	}

	if c.Collectors.Autostart == nil {
		autostart := true
		c.Collectors.Autostart = &autostart
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Primary.DSN = dsn
	}
	if dsn := os.Getenv("UNIFIED_DATABASE_URL"); dsn != "" {
		c.Unified.DSN = dsn
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}
