// SPDX-License-Identifier: MIT
package capture

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync/atomic"
	"time"

	"bandtap/internal/audio"
	"bandtap/internal/config"
	applog "bandtap/internal/log"

	"github.com/gordonklaus/portaudio"
)

// captureState is what the audio callback needs while a tap is enabled.
// It is built before the stream starts and never shared between runs.
type captureState struct {
	listener Listener
	spectrum *Spectrum
	history  *history
	window   []float64
	hop      int
	since    int
	rate     int // sampling rate, millihertz
}

// tick records one mono sample and fires the listener every hop samples.
func (st *captureState) tick(v float64) {
	st.history.write(v)
	st.since++
	if st.since < st.hop {
		return
	}
	st.since = 0
	st.history.snapshot(st.window)
	st.listener(st.spectrum.Compute(st.window), st.rate)
}

func newCaptureState(l Listener, size, rateMilliHz, sampleRate int, w WindowFunc) (*captureState, error) {
	if l == nil {
		return nil, ErrNoListener
	}
	spectrum, err := NewSpectrum(size, w)
	if err != nil {
		return nil, err
	}
	return &captureState{
		listener: l,
		spectrum: spectrum,
		history:  newHistory(size),
		window:   make([]float64, size),
		hop:      hop(sampleRate, rateMilliHz),
		rate:     sampleRate * 1000,
	}, nil
}

// PortAudioTap captures a PortAudio input device, normally the monitor or
// loopback source of the system output, and turns it into capture ticks.
// The listener runs on PortAudio's callback thread.
type PortAudioTap struct {
	tapConfig

	cfg       config.CaptureConfig
	window    WindowFunc
	device    *portaudio.DeviceInfo
	stream    *portaudio.Stream
	recorder  *audio.Recorder
	recordDir string
	log       *applog.Logger

	active atomic.Pointer[captureState]
}

var _ Tap = (*PortAudioTap)(nil)

// NewPortAudioTap opens (but does not start) an input stream on the
// configured device. PortAudio must already be initialised. When
// recordDir is non-empty every enabled run is also written to a WAV file
// there.
func NewPortAudioTap(cfg config.CaptureConfig, recordDir string) (*PortAudioTap, error) {
	w, err := ParseWindowFunc(cfg.Window)
	if err != nil {
		return nil, err
	}
	device, err := audio.InputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	channels := min(cfg.Channels, device.MaxInputChannels)
	t := &PortAudioTap{
		tapConfig: newTapConfig(cfg.MaxCaptureSize, cfg.MaxCaptureRate),
		cfg:       cfg,
		window:    w,
		device:    device,
		recordDir: recordDir,
		log:       applog.Named("portaudio"),
	}
	t.cfg.Channels = channels

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, t.process)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	t.stream = stream

	if recordDir != "" {
		t.recorder = audio.NewRecorder(int(cfg.SampleRate), channels)
	}

	t.log.Infof("opened %q (%d ch, %.0f Hz, %d frames/buffer, latency %s)",
		device.Name, channels, cfg.SampleRate, cfg.FramesPerBuffer, latency)
	return t, nil
}

// SetEnabled starts or stops the input stream.
func (t *PortAudioTap) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return ErrReleased
	}
	if enabled == t.enabled {
		return nil
	}

	if !enabled {
		t.active.Store(nil)
		t.enabled = false
		err := t.stream.Stop()
		if t.recorder != nil {
			if rerr := t.recorder.Stop(); rerr != nil {
				t.log.Warnf("stopping recording: %v", rerr)
			}
		}
		return err
	}

	st, err := newCaptureState(t.listener, t.size, t.rate, int(t.cfg.SampleRate), t.window)
	if err != nil {
		return err
	}
	if t.recorder != nil {
		name := filepath.Join(t.recordDir, "capture-"+time.Now().UTC().Format("02-01-2006-150405")+".wav")
		if err := t.recorder.Start(name); err != nil {
			t.log.Warnf("recording disabled: %v", err)
		} else {
			t.log.Infof("recording to %s", name)
		}
	}

	t.active.Store(st)
	if err := t.stream.Start(); err != nil {
		t.active.Store(nil)
		if t.recorder != nil {
			t.recorder.Stop()
		}
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	t.enabled = true
	return nil
}

// Release stops the stream if needed and closes it.
func (t *PortAudioTap) Release() error {
	if err := t.SetEnabled(false); err != nil && !errors.Is(err, ErrReleased) {
		t.log.Warnf("stopping stream during release: %v", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return nil
	}
	t.released = true
	return t.stream.Close()
}

// process is the PortAudio callback. It downmixes to mono and feeds the
// capture state.
func (t *PortAudioTap) process(in []int32) {
	st := t.active.Load()
	if st == nil {
		return
	}

	if t.recorder != nil {
		if err := t.recorder.Write(in); err != nil {
			t.log.Debugf("%v", err)
		}
	}

	channels := t.cfg.Channels
	const norm = 1.0 / float64(math.MaxInt32)
	for i := 0; i+channels <= len(in); i += channels {
		var sum float64
		for ch := range channels {
			sum += float64(in[i+ch])
		}
		st.tick(sum * norm / float64(channels))
	}
}
