package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Execution ExecutionConfig `yaml:"execution"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. Driver is
// "postgres" or "sqlite3"; an empty driver selects in-memory storage.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// ExecutionConfig holds settings for the workflow runner.
type ExecutionConfig struct {
	GlobalMax     int `yaml:"global_max"`     // max concurrent runs system-wide (default: 10)
	PerDefinition int `yaml:"per_definition"` // max concurrent runs per definition family (default: 3)
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{},
		Execution: ExecutionConfig{
			GlobalMax:     10,
			PerDefinition: 3,
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config
// with environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault loads ".env" if present, then tries "config.yaml" from
// the current directory. If the file does not exist, it returns
// defaults with environment overrides. Any other error (permission
// denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONVEYOR_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CONVEYOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
}

// Addr returns the host:port pair the HTTP server should bind.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
