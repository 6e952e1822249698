// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"bandtap/internal/audio"
	applog "bandtap/internal/log"
)

// FileTap replays a decoded file as if it were the system output. In paced
// mode ticks are delivered at the registered rate; otherwise the file is
// analysed as fast as it decodes. The listener runs on the tap's own
// goroutine.
type FileTap struct {
	tapConfig

	dec    audio.Decoder
	paced  bool
	window WindowFunc
	log    *applog.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

var _ Tap = (*FileTap)(nil)

// NewFileTap wraps an open decoder. The tap owns dec and closes it on
// Release.
func NewFileTap(dec audio.Decoder, maxSize, maxRate int, w WindowFunc, paced bool) *FileTap {
	return &FileTap{
		tapConfig: newTapConfig(maxSize, maxRate),
		dec:       dec,
		paced:     paced,
		window:    w,
		log:       applog.Named("file"),
		done:      make(chan struct{}),
	}
}

// OpenFileTap opens a WAV or MP3 file as a tap.
func OpenFileTap(path string, maxSize, maxRate int, w WindowFunc, paced bool) (*FileTap, error) {
	dec, err := audio.OpenDecoder(path)
	if err != nil {
		return nil, err
	}
	return NewFileTap(dec, maxSize, maxRate, w, paced), nil
}

// Done is closed once the whole file has been delivered or decoding fails.
func (t *FileTap) Done() <-chan struct{} {
	return t.done
}

// SetEnabled starts or stops delivery. Delivery resumes where it stopped.
func (t *FileTap) SetEnabled(enabled bool) error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return ErrReleased
	}
	if enabled == t.enabled {
		t.mu.Unlock()
		return nil
	}

	if !enabled {
		cancel := t.cancel
		t.cancel = nil
		t.enabled = false
		t.mu.Unlock()

		cancel()
		t.wg.Wait()
		return nil
	}
	defer t.mu.Unlock()

	st, err := newCaptureState(t.listener, t.size, t.rate, t.dec.SampleRate(), t.window)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.enabled = true

	var period time.Duration
	if t.paced {
		period = time.Duration(int64(time.Second) * 1000 / int64(t.rate))
	}

	t.wg.Add(1)
	go t.run(ctx, st, period)
	return nil
}

// Release stops delivery and closes the decoder.
func (t *FileTap) Release() error {
	if err := t.SetEnabled(false); err != nil && !errors.Is(err, ErrReleased) {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return nil
	}
	t.released = true
	t.finish()
	return t.dec.Close()
}

func (t *FileTap) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

// run decodes one hop per tick until the file ends or ctx is cancelled.
func (t *FileTap) run(ctx context.Context, st *captureState, period time.Duration) {
	defer t.wg.Done()

	var ticks <-chan time.Time
	if period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		if ctx.Err() != nil {
			return
		}

		chunk, err := t.dec.ReadChunk(st.hop - st.since)
		if errors.Is(err, io.EOF) {
			t.log.Debugf("end of file")
			t.finish()
			return
		}
		if err != nil {
			t.log.Errorf("decode failed: %v", err)
			t.finish()
			return
		}
		for _, v := range chunk {
			st.tick(v)
		}

		if ticks != nil && st.since == 0 {
			select {
			case <-ticks:
			case <-ctx.Done():
				return
			}
		}
	}
}
