package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

const (
	DefaultConfigFileName = "strata.yaml"
	CurrentConfigVersion  = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
)

// Telemetry exporters understood by the CLI
const (
	TelemetryNone   = "none"
	TelemetryStdout = "stdout"
)

type Config struct {
	Version int `yaml:"version"`

	// Storage configuration
	Dir                 string `yaml:"dir"`
	FlushThresholdBytes int64  `yaml:"flush_threshold_bytes"`
	BloomBitsPerKey     int    `yaml:"bloom_bits_per_key"`
	SyncWrites          bool   `yaml:"sync_writes"`

	// Logging configuration
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Service configuration
	HTTPAddr  string `yaml:"http_addr"`
	Telemetry string `yaml:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dbPath string) *Config {
	return &Config{
		Version: CurrentConfigVersion,

		Dir:                 dbPath,
		FlushThresholdBytes: 4 * 1024 * 1024, // 4MB
		BloomBitsPerKey:     10,
		SyncWrites:          true,

		LogLevel: "info",

		Telemetry: TelemetryNone,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.Dir == "" {
		return fmt.Errorf("%w: data directory not specified", ErrInvalidConfig)
	}

	if c.FlushThresholdBytes <= 0 {
		return fmt.Errorf("%w: flush threshold must be positive", ErrInvalidConfig)
	}

	if c.BloomBitsPerKey < 0 {
		return fmt.Errorf("%w: bloom bits per key must not be negative", ErrInvalidConfig)
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	switch c.Telemetry {
	case "", TelemetryNone, TelemetryStdout:
	default:
		return fmt.Errorf("%w: unknown telemetry exporter %q", ErrInvalidConfig, c.Telemetry)
	}

	return nil
}

// LoadFile reads a YAML configuration file. Fields missing from the file keep
// their defaults, with the data directory defaulting to the file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig(filepath.Dir(path))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveFile writes the configuration as YAML, replacing the file atomically
func (c *Config) SaveFile(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Snapshot returns a copy of the configuration that is safe to read without locking
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Version:             c.Version,
		Dir:                 c.Dir,
		FlushThresholdBytes: c.FlushThresholdBytes,
		BloomBitsPerKey:     c.BloomBitsPerKey,
		SyncWrites:          c.SyncWrites,
		LogLevel:            c.LogLevel,
		LogJSON:             c.LogJSON,
		HTTPAddr:            c.HTTPAddr,
		Telemetry:           c.Telemetry,
	}
}
