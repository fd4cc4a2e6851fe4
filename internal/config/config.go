// Package config loads the YAML configuration of the calrecur tool.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cyp0633/calrecur/recurrence"
	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel  = "warn"
	defaultTimezone  = "UTC"
	defaultProductID = "-//calrecur//calrecur//EN"
)

// Config is the top-level configuration.
type Config struct {
	// LogLevel is one of "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level"`

	// Timezone is the IANA zone floating date-times are resolved in.
	Timezone string `yaml:"timezone"`

	// MinFree is the default minimum gap reported as free time, as an
	// iCalendar duration (e.g. "PT30M"). Empty reports busy time instead.
	MinFree string `yaml:"min_free"`

	// MaxInstances caps how many instances one master may generate.
	// 0 disables the cap.
	MaxInstances int `yaml:"max_instances"`

	// ProductID is written as PRODID on generated calendars.
	ProductID string `yaml:"product_id"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  defaultLogLevel,
		Timezone:  defaultTimezone,
		ProductID: defaultProductID,
	}
}

// Normalize fills in zero values with defaults.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.ProductID == "" {
		c.ProductID = defaultProductID
	}
}

// Validate checks that every field can be used.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MinFree != "" {
		if _, err := c.MinFreeDur(); err != nil {
			return err
		}
	}
	if c.MaxInstances < 0 {
		return fmt.Errorf("max_instances must not be negative, got %d", c.MaxInstances)
	}
	return nil
}

// Load reads the YAML file at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, normalizes and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
}

// ErrNoMinFree is returned by MinFreeDur when no minimum is configured.
var ErrNoMinFree = errors.New("min_free not set")

// MinFreeDur parses MinFree. It returns ErrNoMinFree when MinFree is empty.
func (c *Config) MinFreeDur() (recurrence.Dur, error) {
	if c.MinFree == "" {
		return recurrence.Dur{}, ErrNoMinFree
	}
	d, err := recurrence.ParseDur(c.MinFree)
	if err != nil {
		return recurrence.Dur{}, fmt.Errorf("invalid min_free: %w", err)
	}
	return d, nil
}

// EngineConfig builds the recurrence engine configuration.
func (c *Config) EngineConfig() (recurrence.EngineConfig, error) {
	loc, err := c.Location()
	if err != nil {
		return recurrence.EngineConfig{}, err
	}
	return recurrence.EngineConfig{FloatingLocation: loc, MaxInstances: c.MaxInstances}, nil
}
