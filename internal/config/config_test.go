package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simonhull/atomtree/internal/box"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atomdump.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
	if cfg.Policy() != box.RoundTripReport {
		t.Errorf("Policy() = %s, want report", cfg.Policy())
	}
	if l, _ := cfg.Level(); l != slog.LevelWarn {
		t.Errorf("Level() = %s, want WARN", l)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
buffer_size: 4096
round_trip: strict
strict: true
log_level: debug
format: yaml
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.BufferSize != 4096 || !cfg.Strict || cfg.Format != FormatYAML {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Policy() != box.RoundTripStrict {
		t.Errorf("Policy() = %s, want strict", cfg.Policy())
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level() = %s, want DEBUG", l)
	}
	if cfg.MaxPayloadSize != box.DefaultMaxPayloadSize {
		t.Errorf("unset max_payload_size = %d, want the default", cfg.MaxPayloadSize)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"buffer size", "buffer_size: 0", "buffer_size"},
		{"payload size", "max_payload_size: -1", "max_payload_size"},
		{"round trip", "round_trip: sometimes", "round-trip"},
		{"log level", "log_level: loud", "log_level"},
		{"format", "format: xml", "format"},
		{"syntax", "buffer_size: [", "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_Environment(t *testing.T) {
	path := writeConfig(t, "format: cbor\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Format != FormatCBOR {
		t.Errorf("Format = %q, want cbor", cfg.Format)
	}

	t.Setenv(EnvVar, "")
	cfg, err = Load("")
	if err != nil || cfg.Format != FormatText {
		t.Errorf("Load() without a file = %+v, %v", cfg, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
