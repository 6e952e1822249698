// SPDX-License-Identifier: MIT

/*
Package capture connects an audio tap to the band analyzer.

A Tap is the external collaborator that owns the audio and produces one
frequency-domain buffer per capture tick. A Session owns the Tap's
lifecycle: it configures it, feeds every buffer through bands.Analyzer and
publishes the result.

Rates follow the convention of the capture API the band formula was written
against: both the tick rate and the sampling rate passed to a Listener are
in millihertz.
*/
package capture

import (
	"errors"
	"fmt"
	"sync"

	"bandtap/pkg/bitint"
)

// Listener receives one capture: interleaved signed 8-bit (real, imag)
// pairs, DC first, and the sampling rate in millihertz. The buffer is only
// valid for the duration of the call.
type Listener func(fft []byte, samplingRate int)

// Tap is a handle on a capture source.
//
// Configuration (SetCaptureSize, SetListener) is only accepted while the
// tap is disabled. Once Release has been called every method returns
// ErrReleased.
type Tap interface {
	// CaptureSizeRange returns the smallest and largest capture window,
	// in samples, that SetCaptureSize accepts.
	CaptureSizeRange() (min, max int)

	// MaxCaptureRate returns the highest tick rate in millihertz.
	MaxCaptureRate() int

	SetCaptureSize(size int) error

	// SetListener registers l to be called rate/1000 times per second.
	SetListener(l Listener, rate int) error

	SetEnabled(enabled bool) error

	Release() error
}

// Opener acquires a new Tap.
type Opener func() (Tap, error)

var (
	ErrReleased           = errors.New("capture tap released")
	ErrEnabled            = errors.New("capture tap is enabled")
	ErrInvalidCaptureSize = errors.New("invalid capture size")
	ErrInvalidRate        = errors.New("invalid capture rate")
	ErrNoListener         = errors.New("no listener registered")
)

// MinCaptureSize is the smallest window any tap offers.
const MinCaptureSize = 128

// tapConfig holds the settings shared by every Tap implementation.
type tapConfig struct {
	mu       sync.Mutex
	maxSize  int
	maxRate  int
	size     int
	listener Listener
	rate     int
	enabled  bool
	released bool
}

func newTapConfig(maxSize, maxRate int) tapConfig {
	return tapConfig{maxSize: maxSize, maxRate: maxRate, size: maxSize, rate: maxRate}
}

func (c *tapConfig) CaptureSizeRange() (int, int) {
	return MinCaptureSize, c.maxSize
}

func (c *tapConfig) MaxCaptureRate() int {
	return c.maxRate
}

func (c *tapConfig) SetCaptureSize(size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.configurable(); err != nil {
		return err
	}
	if size < MinCaptureSize || size > c.maxSize || !bitint.IsPowerOfTwo(size) {
		return fmt.Errorf("%w: %d (want a power of 2 in [%d, %d])", ErrInvalidCaptureSize, size, MinCaptureSize, c.maxSize)
	}
	c.size = size
	return nil
}

func (c *tapConfig) SetListener(l Listener, rate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.configurable(); err != nil {
		return err
	}
	if rate <= 0 || rate > c.maxRate {
		return fmt.Errorf("%w: %d mHz (max %d)", ErrInvalidRate, rate, c.maxRate)
	}
	c.listener = l
	c.rate = rate
	return nil
}

// configurable must be called with mu held.
func (c *tapConfig) configurable() error {
	if c.released {
		return ErrReleased
	}
	if c.enabled {
		return ErrEnabled
	}
	return nil
}

// hop returns the number of samples between two ticks at sampleRate Hz.
func hop(sampleRate, rateMilliHz int) int {
	n := sampleRate * 1000 / rateMilliHz
	return max(n, 1)
}
