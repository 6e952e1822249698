// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Decoder reads a compressed or PCM file as mono float64 samples in [-1, 1].
type Decoder interface {
	// ReadChunk returns up to n mono samples. It returns io.EOF once the
	// source is exhausted.
	ReadChunk(n int) ([]float64, error)

	// SampleRate returns the source sample rate in Hz.
	SampleRate() int

	// NumChannels returns the channel count before downmixing.
	NumChannels() int

	Close() error
}

// OpenDecoder picks a decoder from the file extension.
func OpenDecoder(path string) (Decoder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return NewWAVDecoder(path)
	case ".mp3":
		return NewMP3Decoder(path)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", ext)
	}
}
