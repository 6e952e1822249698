// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder implements Decoder for MP3 files. go-mp3 always produces
// 16-bit little-endian interleaved stereo.
type MP3Decoder struct {
	decoder *mp3.Decoder
	file    *os.File
	raw     []byte
}

const mp3FrameBytes = 4 // 2 channels x 16 bits

// NewMP3Decoder opens filename for decoding.
func NewMP3Decoder(filename string) (*MP3Decoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}
	return &MP3Decoder{decoder: decoder, file: f}, nil
}

// ReadChunk reads up to n stereo frames and averages them to mono.
func (d *MP3Decoder) ReadChunk(n int) ([]float64, error) {
	want := n * mp3FrameBytes
	if cap(d.raw) < want {
		d.raw = make([]byte, want)
	}
	d.raw = d.raw[:want]

	read, err := io.ReadFull(d.decoder, d.raw)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	frames := read / mp3FrameBytes
	if frames == 0 {
		return nil, io.EOF
	}

	samples := make([]float64, frames)
	for i := range frames {
		b := d.raw[i*mp3FrameBytes:]
		left := int16(uint16(b[0]) | uint16(b[1])<<8)
		right := int16(uint16(b[2]) | uint16(b[3])<<8)
		samples[i] = (float64(left) + float64(right)) / 65536.0
	}
	return samples, nil
}

func (d *MP3Decoder) SampleRate() int  { return d.decoder.SampleRate() }
func (d *MP3Decoder) NumChannels() int { return 2 }

func (d *MP3Decoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
