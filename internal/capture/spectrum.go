// SPDX-License-Identifier: MIT
package capture

import (
	"fmt"
	"math"
	"strings"

	"bandtap/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
)

var windowNames = map[WindowFunc]string{
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
	Rectangular:     "rectangular",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. It
// returns Hann and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "hanning":
		return Hann, nil
	case "rect", "none":
		return Rectangular, nil
	}
	for w, n := range windowNames {
		if n == strings.ToLower(name) {
			return w, nil
		}
	}
	return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

// coefficients fills coeffs with the window shape.
func (w WindowFunc) coefficients(coeffs []float64) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
	default:
		window.Hann(coeffs)
	}
}

// Spectrum turns a window of mono samples into the 8-bit interleaved
// spectrum handed to Listeners. It reuses its buffers and is not safe for
// concurrent use.
type Spectrum struct {
	size   int
	fft    *fourier.FFT
	window []float64
	input  []float64
	coeffs []complex128
	out    []byte
	scale  float64
}

// NewSpectrum prepares an FFT of size points (a power of 2).
func NewSpectrum(size int, w WindowFunc) (*Spectrum, error) {
	if size < 2 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("%w: fft size must be a power of 2, got %d", ErrInvalidCaptureSize, size)
	}

	coeffs := make([]float64, size)
	w.coefficients(coeffs)

	return &Spectrum{
		size:   size,
		fft:    fourier.NewFFT(size),
		window: coeffs,
		input:  make([]float64, size),
		coeffs: make([]complex128, size/2+1),
		out:    make([]byte, size),
		// A full-scale bin of magnitude size/2 maps to 128.
		scale: 256 / float64(size),
	}, nil
}

// Size returns the number of input samples per transform.
func (s *Spectrum) Size() int {
	return s.size
}

// Compute windows samples (zero padded or truncated to Size), runs the FFT
// and returns size/2 (real, imag) pairs quantised to signed bytes. The
// returned slice is overwritten by the next call.
func (s *Spectrum) Compute(samples []float64) []byte {
	for i := range s.input {
		if i < len(samples) {
			s.input[i] = samples[i] * s.window[i]
		} else {
			s.input[i] = 0
		}
	}

	s.fft.Coefficients(s.coeffs, s.input)

	for k := range s.size / 2 {
		c := s.coeffs[k]
		s.out[2*k] = quantize(real(c) * s.scale)
		s.out[2*k+1] = quantize(imag(c) * s.scale)
	}
	return s.out
}

func quantize(v float64) byte {
	v = math.Round(v)
	switch {
	case v > math.MaxInt8:
		v = math.MaxInt8
	case v < math.MinInt8:
		v = math.MinInt8
	}
	return byte(int8(v))
}
