// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder implements Decoder for PCM WAV files.
type WAVDecoder struct {
	decoder    *wav.Decoder
	file       *os.File
	sampleRate int
	numChans   int
	scale      float64
	buf        *audio.IntBuffer
}

// NewWAVDecoder opens filename and positions it at the PCM data.
func NewWAVDecoder(filename string) (*WAVDecoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, errors.New("invalid WAV file")
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	numChans := int(decoder.NumChans)
	if numChans < 1 {
		f.Close()
		return nil, fmt.Errorf("WAV file declares %d channels", numChans)
	}

	return &WAVDecoder{
		decoder:    decoder,
		file:       f,
		sampleRate: int(decoder.SampleRate),
		numChans:   numChans,
		scale:      1 / float64(audio.IntMaxSignedValue(int(decoder.BitDepth))),
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: numChans, SampleRate: int(decoder.SampleRate)},
		},
	}, nil
}

// ReadChunk reads up to n frames and downmixes them to mono.
func (d *WAVDecoder) ReadChunk(n int) ([]float64, error) {
	want := n * d.numChans
	if cap(d.buf.Data) < want {
		d.buf.Data = make([]int, want)
	}
	d.buf.Data = d.buf.Data[:want]

	read, err := d.decoder.PCMBuffer(d.buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if read == 0 {
		return nil, io.EOF
	}

	frames := read / d.numChans
	samples := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range d.numChans {
			sum += float64(d.buf.Data[i*d.numChans+ch])
		}
		samples[i] = sum * d.scale / float64(d.numChans)
	}
	return samples, nil
}

func (d *WAVDecoder) SampleRate() int  { return d.sampleRate }
func (d *WAVDecoder) NumChannels() int { return d.numChans }

func (d *WAVDecoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
