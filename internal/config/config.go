// Package config loads the application configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Logging  LoggingConfig  `yaml:"logging"`
	MOTD     string         `yaml:"motd"`
	Messages string         `yaml:"messages"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig configures the store connection pool. The pool is sized
// independently from the gateway worker pool.
type DatabaseConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	SSLMode     string `yaml:"sslmode"`
	MaxOpen     int    `yaml:"max-open"`
	MaxIdle     int    `yaml:"max-idle"`
	ConnTimeout string `yaml:"connection-timeout"`
}

// GatewayConfig sizes the persistence gateway worker pool.
type GatewayConfig struct {
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue-size"`
	OpTimeout string `yaml:"op-timeout"`
}

// SweepConfig configures the expiry sweeper.
type SweepConfig struct {
	Interval string `yaml:"interval"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			Name:        "groupsystem",
			User:        "groupsystem",
			Password:    "groupsystem",
			SSLMode:     "disable",
			MaxOpen:     10,
			MaxIdle:     2,
			ConnTimeout: "30s",
		},
		Gateway: GatewayConfig{Workers: 8, QueueSize: 256, OpTimeout: "5s"},
		Sweep:   SweepConfig{Interval: "10s"},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads the configuration file at path, or the path named by
// GROUPSYSTEM_CONFIG, falling back to defaults when no file exists.
// Environment variables override the listen address and database DSN parts.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GROUPSYSTEM_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GROUPSYSTEM_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("GROUPSYSTEM_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("GROUPSYSTEM_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("GROUPSYSTEM_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("GROUPSYSTEM_LISTEN"); v != "" {
		cfg.Server.Host = v
	}
}

func (c *Config) validate() error {
	if c.Gateway.Workers <= 0 {
		return fmt.Errorf("config: gateway.workers must be positive")
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	if _, err := c.GatewayOpTimeout(); err != nil {
		return err
	}
	if _, err := c.ConnTimeout(); err != nil {
		return err
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	sslmode := c.Database.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.Name,
		c.Database.User, c.Database.Password, sslmode,
	)
}

// SweepInterval returns the parsed sweep interval.
func (c *Config) SweepInterval() (time.Duration, error) {
	return parseDuration("sweep.interval", c.Sweep.Interval, 10*time.Second)
}

// GatewayOpTimeout returns the parsed per-operation store timeout.
func (c *Config) GatewayOpTimeout() (time.Duration, error) {
	return parseDuration("gateway.op-timeout", c.Gateway.OpTimeout, 5*time.Second)
}

// ConnTimeout returns the parsed connection-acquisition timeout.
func (c *Config) ConnTimeout() (time.Duration, error) {
	return parseDuration("database.connection-timeout", c.Database.ConnTimeout, 30*time.Second)
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}
