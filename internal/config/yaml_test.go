// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bandtap/internal/bands"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Capture.MaxCaptureRate != DefaultMaxCaptureRate {
		t.Errorf("max capture rate = %d, want %d", cfg.Capture.MaxCaptureRate, DefaultMaxCaptureRate)
	}
	if len(cfg.Analysis.Bands) != 3 || cfg.Analysis.Bands[0] != bands.DefaultBands()[0] {
		t.Errorf("unexpected default bands: %+v", cfg.Analysis.Bands)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
capture:
  device: 3
  sample_rate: 48000
  max_capture_size: 512
  window: hamming
analysis:
  rate_divisor: 2
  bands:
    - {name: bass, low_hz: 20, high_hz: 200}
    - {name: mid, low_hz: 201, high_hz: 5000}
transport:
  udp_enabled: true
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Capture.Device != 3 || cfg.Capture.SampleRate != 48000 {
		t.Errorf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Capture.MaxCaptureSize != 512 || cfg.Capture.Window != "hamming" {
		t.Errorf("unexpected capture values: %+v", cfg.Capture)
	}
	// Unset keys keep their defaults.
	if cfg.Capture.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("frames_per_buffer = %d, want default", cfg.Capture.FramesPerBuffer)
	}
	if cfg.Analysis.RateDivisor != 2 || len(cfg.Analysis.Bands) != 2 || cfg.Analysis.Bands[1].HighHz != 5000 {
		t.Errorf("unexpected analysis values: %+v", cfg.Analysis)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("unexpected transport values: %+v", cfg.Transport)
	}
}

func TestLoadConfig_InvalidBands(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
analysis:
  bands:
    - {name: bass, low_hz: 20, high_hz: 300}
    - {name: mid, low_hz: 250, high_hz: 4000}
`)
	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, bands.ErrInvalidBands) {
		t.Errorf("expected overlapping bands to be rejected, got %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "transport:\n  udp_enabled: false\n")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "not-a-duration")
	t.Setenv("ENV_CAPTURE_DEVICE", "2")
	t.Setenv("ENV_WS_ENABLED", "yes please")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:7000" {
		t.Errorf("UDP overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Transport.UDPSendInterval != DefaultUDPSendInterval {
		t.Errorf("bad duration should be ignored, got %s", cfg.Transport.UDPSendInterval)
	}
	if cfg.Transport.WSEnabled {
		t.Error("bad bool should be ignored")
	}
	if cfg.Capture.Device != 2 {
		t.Errorf("device = %d, want 2", cfg.Capture.Device)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"device below default", func(c *Config) { c.Capture.Device = -2 }},
		{"sample rate too low", func(c *Config) { c.Capture.SampleRate = 100 }},
		{"zero frames", func(c *Config) { c.Capture.FramesPerBuffer = 0 }},
		{"three channels", func(c *Config) { c.Capture.Channels = 3 }},
		{"capture size not power of two", func(c *Config) { c.Capture.MaxCaptureSize = 1000 }},
		{"capture size too small", func(c *Config) { c.Capture.MaxCaptureSize = 64 }},
		{"zero capture rate", func(c *Config) { c.Capture.MaxCaptureRate = 0 }},
		{"zero divisor", func(c *Config) { c.Analysis.RateDivisor = 0 }},
		{"no bands", func(c *Config) { c.Analysis.Bands = nil }},
		{"recording without dir", func(c *Config) { c.Recording.Enabled = true; c.Recording.OutputDir = "" }},
		{"ws without address", func(c *Config) { c.Transport.WSEnabled = true; c.Transport.WSAddress = "" }},
		{"udp without port", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPTargetAddress = "localhost" }},
		{"udp zero interval", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPSendInterval = 0 }},
	}

	if err := NewConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig("../../config.example.yaml")
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	defaults := NewConfig()
	if cfg.Capture != defaults.Capture || cfg.Transport != defaults.Transport {
		t.Errorf("example config drifted from the defaults:\n got %+v\nwant %+v", cfg, defaults)
	}
	if len(cfg.Analysis.Bands) != 3 || cfg.Analysis.RateDivisor != defaults.Analysis.RateDivisor {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
}
