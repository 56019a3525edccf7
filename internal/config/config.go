// Package config loads the atomdump configuration file.
//
// The file is optional: Default covers every field and command-line flags
// override whatever the file sets. Only an explicit --config path or the
// ATOMDUMP_CONFIG environment variable selects a file; there is no search
// path.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/simonhull/atomtree/internal/box"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "ATOMDUMP_CONFIG"

// Output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// Config is the atomdump configuration.
type Config struct {
	// BufferSize is the chunk size used when shifting file tails.
	// Default: 65536
	BufferSize int `yaml:"buffer_size"`

	// RoundTrip is the round-trip validation policy: off, report or strict.
	// Default: report
	RoundTrip string `yaml:"round_trip"`

	// Strict fails on malformed nested boxes instead of keeping them opaque.
	Strict bool `yaml:"strict"`

	// MaxPayloadSize bounds the payloads decoded in memory.
	// Default: 16777216
	MaxPayloadSize int64 `yaml:"max_payload_size"`

	// LogLevel is one of debug, info, warn, error.
	// Default: warn
	LogLevel string `yaml:"log_level"`

	// Format selects the output: text, yaml or cbor.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BufferSize:     64 * 1024,
		RoundTrip:      "report",
		MaxPayloadSize: box.DefaultMaxPayloadSize,
		LogLevel:       "warn",
		Format:         FormatText,
	}
}

// Load reads the file named by path, or by ATOMDUMP_CONFIG when path is
// empty. With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file over the defaults and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("max_payload_size must be positive, got %d", c.MaxPayloadSize)
	}
	if _, err := box.ParseRoundTripPolicy(c.RoundTrip); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Format {
	case FormatText, FormatYAML, FormatCBOR:
	default:
		return fmt.Errorf("unknown format %q (want text, yaml or cbor)", c.Format)
	}
	return nil
}

// Policy returns the parsed round-trip policy.
func (c *Config) Policy() box.RoundTripPolicy {
	p, _ := box.ParseRoundTripPolicy(c.RoundTrip)
	return p
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelWarn, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
