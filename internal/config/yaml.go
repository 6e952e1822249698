// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bandtap/internal/bands"
	applog "bandtap/internal/log"
	"bandtap/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is the file LoadConfig looks for when no path is given.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from a YAML file. An empty path looks for
// DefaultPath and falls back to built-in defaults if it does not exist.
// Environment overrides are applied after the file, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and the band table.
func (c *Config) Validate() error {
	cc := c.Capture
	if cc.Device < MinDeviceID {
		return fmt.Errorf("%w: capture.device %d", ErrInvalid, cc.Device)
	}
	if cc.SampleRate < MinSampleRate || cc.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: capture.sample_rate %.0f outside [%d, %d]", ErrInvalid, cc.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if cc.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: capture.frames_per_buffer must be positive", ErrInvalid)
	}
	if cc.Channels < 1 || cc.Channels > 2 {
		return fmt.Errorf("%w: capture.channels must be 1 or 2, got %d", ErrInvalid, cc.Channels)
	}
	if cc.MaxCaptureSize < MinCaptureSize || cc.MaxCaptureSize > MaxCaptureSize || !bitint.IsPowerOfTwo(cc.MaxCaptureSize) {
		return fmt.Errorf("%w: capture.max_capture_size must be a power of 2 in [%d, %d], got %d",
			ErrInvalid, MinCaptureSize, MaxCaptureSize, cc.MaxCaptureSize)
	}
	if cc.MaxCaptureRate <= 0 {
		return fmt.Errorf("%w: capture.max_capture_rate must be positive", ErrInvalid)
	}

	if c.Analysis.RateDivisor <= 0 {
		return fmt.Errorf("%w: analysis.rate_divisor must be positive", ErrInvalid)
	}
	if err := bands.ValidateBands(c.Analysis.Bands); err != nil {
		return fmt.Errorf("%w: analysis.bands: %w", ErrInvalid, err)
	}

	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		return fmt.Errorf("%w: recording.output_dir must be set when recording is enabled", ErrInvalid)
	}

	t := c.Transport
	if t.WSEnabled && t.WSAddress == "" {
		return fmt.Errorf("%w: transport.ws_address must be set when the WebSocket feed is enabled", ErrInvalid)
	}
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("%w: transport.udp_target_address %q appears invalid (missing port?)", ErrInvalid, t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalid)
		}
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("config: overriding log_level from env: %s", val)
	}

	// ENV_CAPTURE_{...}
	if val, ok := os.LookupEnv("ENV_CAPTURE_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Capture.Device = n
			applog.Debugf("config: overriding capture.device from env: %d", n)
		}
	}
	if val, ok := os.LookupEnv("ENV_CAPTURE_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Capture.SampleRate = f
			applog.Debugf("config: overriding capture.sample_rate from env: %.0f", f)
		}
	}

	// ENV_WS_{...}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WSEnabled = b
			applog.Debugf("config: overriding transport.ws_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WSAddress = val
		applog.Debugf("config: overriding transport.ws_address from env: %s", val)
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			applog.Debugf("config: overriding transport.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("config: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
			applog.Debugf("config: overriding transport.udp_send_interval from env: %s", d)
		}
	}
}
