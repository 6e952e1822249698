// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrRecording is returned by Start when a recording is already running.
var ErrRecording = errors.New("already recording")

// Recorder writes interleaved 32-bit PCM to a WAV file. Write is meant to
// be called from the capture callback; Start and Stop from anywhere.
type Recorder struct {
	sampleRate int
	channels   int

	active atomic.Bool
	mu     sync.Mutex // Serialises Write against Stop
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
}

// NewRecorder returns a stopped recorder for the given format.
func NewRecorder(sampleRate, channels int) *Recorder {
	return &Recorder{sampleRate: sampleRate, channels: channels}
}

// Start creates filename and begins accepting samples.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active.Load() {
		return ErrRecording
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}

	r.file = file
	r.enc = wav.NewEncoder(file, r.sampleRate, 32, r.channels, 1)
	r.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.channels,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: 32,
	}
	r.active.Store(true)
	return nil
}

// Recording reports whether samples are currently being written.
func (r *Recorder) Recording() bool {
	return r.active.Load()
}

// Write appends interleaved samples. It is a no-op while stopped.
func (r *Recorder) Write(samples []int32) error {
	if !r.active.Load() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(s)
	}
	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return nil
}

// Stop finalises the WAV header and closes the file. Stopping a stopped
// recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active.Swap(false) {
		return nil
	}

	var errs []error
	if r.enc != nil {
		if err := r.enc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finalise recording: %w", err))
		}
		r.enc = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close recording: %w", err))
		}
		r.file = nil
	}
	return errors.Join(errs...)
}
