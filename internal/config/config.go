// Package config loads the carry engine configuration: built-in defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/argos/carry-engine/internal/spread"
)

// PathEnv names the environment variable holding the YAML config path.
const PathEnv = "CARRY_CONFIG"

// Config is the service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Risk      spread.Config   `yaml:"risk"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// ReconcileTimeout bounds a single reconciliation request.
	ReconcileTimeout time.Duration `yaml:"reconcile_timeout"`
}

// DatabaseConfig holds the live data source connection. Empty URL disables
// the live source.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the read-through cache settings. Empty URL disables
// caching.
type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// SyntheticConfig controls the demo data source.
type SyntheticConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             "8080",
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     10 * time.Second,
			IdleTimeout:      60 * time.Second,
			ReconcileTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{TTL: 30 * time.Second},
		Risk:  spread.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from .env files into the environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CARRY_MAX_DAILY_LOSS"); v != "" {
		loss, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("CARRY_MAX_DAILY_LOSS: %w", err)
		}
		c.Risk.MaxDailyLoss = loss
	}
	if v := os.Getenv("CARRY_SYNTHETIC"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARRY_SYNTHETIC: %w", err)
		}
		c.Synthetic.Enabled = on
	}
	return nil
}

// Validate checks server, cache and risk settings.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Server.ReconcileTimeout <= 0 {
		return fmt.Errorf("reconcile timeout must be positive, got %s", c.Server.ReconcileTimeout)
	}
	if c.Redis.URL != "" && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis ttl must be positive, got %s", c.Redis.TTL)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	return c.Risk.Validate()
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Logging.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
