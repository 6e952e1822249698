// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"bandtap/internal/bands"
)

// Defaults and limits for the capture pipeline.
const (
	DefaultDevice          = MinDeviceID // System default input (point it at a monitor/loopback source)
	DefaultSampleRate      = 44100       // Hz
	DefaultFramesPerBuffer = 512         // PortAudio frames per callback
	DefaultMaxCaptureSize  = 1024        // Largest capture window offered by the taps
	DefaultMaxCaptureRate  = 20000       // 20 captures per second, in millihertz
	DefaultWindow          = "hann"
	DefaultLogLevel        = "info"

	DefaultWSAddress       = ":8080"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPSendInterval = 33 * time.Millisecond // ~30Hz

	MinDeviceID    = -1 // -1 selects the system default device
	MinSampleRate  = 8000
	MaxSampleRate  = 192000
	MinCaptureSize = 128
	MaxCaptureSize = 8192
)

// Config is the full runtime configuration, loaded from YAML and then
// overridden by environment variables and command line flags.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error
	Verbose   bool            `yaml:"-"`         // --verbose, forces debug
	Capture   CaptureConfig   `yaml:"capture"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// CaptureConfig describes the live capture tap.
type CaptureConfig struct {
	Device          int     `yaml:"device"`            // PortAudio device index, -1 for default
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per PortAudio callback
	Channels        int     `yaml:"channels"`          // Channels to open; downmixed to mono
	MaxCaptureSize  int     `yaml:"max_capture_size"`  // Largest FFT window offered (power of 2)
	MaxCaptureRate  int     `yaml:"max_capture_rate"`  // Highest tick rate offered, millihertz
	Window          string  `yaml:"window"`            // FFT window function name
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency
}

// AnalysisConfig describes the band table and the rate scaling.
type AnalysisConfig struct {
	RateDivisor float64      `yaml:"rate_divisor"` // Capture rate / divisor = Nyquist on the band-edge scale
	Bands       []bands.Band `yaml:"bands"`
}

// RecordingConfig controls the WAV copy of the analysed input.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// TransportConfig controls the consumer-facing feeds.
type TransportConfig struct {
	WSEnabled        bool          `yaml:"ws_enabled"`
	WSAddress        string        `yaml:"ws_address"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	LogEnabled       bool          `yaml:"log_enabled"` // Print every snapshot at debug level
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Capture: CaptureConfig{
			Device:          DefaultDevice,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        2,
			MaxCaptureSize:  DefaultMaxCaptureSize,
			MaxCaptureRate:  DefaultMaxCaptureRate,
			Window:          DefaultWindow,
		},
		Analysis: AnalysisConfig{
			RateDivisor: bands.DefaultRateDivisor,
			Bands:       bands.DefaultBands(),
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
		},
		Transport: TransportConfig{
			WSAddress:        DefaultWSAddress,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}
