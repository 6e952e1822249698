// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"bandtap/internal/bands"
	applog "bandtap/internal/log"
)

// Outcome classifies the result of Start or Stop.
type Outcome int

const (
	Started Outcome = iota + 1
	AlreadyStarted
	Stopped
	AlreadyStopped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case AlreadyStarted:
		return "already started"
	case Stopped:
		return "stopped"
	case AlreadyStopped:
		return "already stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result reports what Start or Stop did. Err is set when Outcome is Failed,
// and also for a Stopped session whose teardown hit errors.
type Result struct {
	Outcome Outcome
	Err     error
}

// OK reports whether the call completed without any error.
func (r Result) OK() bool {
	return r.Outcome != Failed && r.Err == nil
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Outcome, r.Err)
	}
	return r.Outcome.String()
}

// Session owns one capture tap at a time and publishes the bands computed
// from every capture it delivers. Band visualisation is best effort: tap
// failures are logged and reported in the Result, never raised, and always
// leave the session stopped.
//
// Start, Stop and the read side are safe to call from any goroutine. The
// capture callback never takes the session lock, so Stop does not deadlock
// against a capture in flight; that capture's publish may or may not be
// observed.
type Session struct {
	open     Opener
	analyzer *bands.Analyzer
	pub      *bands.Publisher
	log      *applog.Logger

	mu  sync.Mutex
	tap Tap

	generation atomic.Uint64 // Bumped by every Start and Stop
	captures   atomic.Uint64
}

// NewSession returns a stopped session that acquires taps with open.
func NewSession(open Opener, analyzer *bands.Analyzer) *Session {
	if analyzer == nil {
		analyzer = bands.NewDefaultAnalyzer()
	}
	return &Session{
		open:     open,
		analyzer: analyzer,
		pub:      bands.NewPublisher(),
		log:      applog.Named("capture"),
	}
}

// Start acquires a tap, sizes its capture window to the maximum offered,
// registers for frequency captures at half the maximum rate and enables
// it. Starting a started session is a no-op.
func (s *Session) Start() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tap != nil {
		return Result{Outcome: AlreadyStarted}
	}

	tap, err := guardOpen(s.open)
	if err != nil {
		s.log.Errorf("tap initialisation failed: %v", err)
		return Result{Outcome: Failed, Err: err}
	}

	gen := s.generation.Add(1)
	if err := s.configure(tap, gen); err != nil {
		s.log.Errorf("tap configuration failed: %v", err)
		if rerr := guard("release", tap.Release); rerr != nil {
			s.log.Warnf("releasing unconfigured tap: %v", rerr)
		}
		s.generation.Add(1)
		return Result{Outcome: Failed, Err: err}
	}

	s.tap = tap
	s.log.Infof("capture started")
	return Result{Outcome: Started}
}

func (s *Session) configure(tap Tap, gen uint64) error {
	_, maxSize := tap.CaptureSizeRange()
	if err := tap.SetCaptureSize(maxSize); err != nil {
		return fmt.Errorf("set capture size %d: %w", maxSize, err)
	}

	rate := tap.MaxCaptureRate() / 2
	listener := func(fft []byte, samplingRate int) {
		s.onCapture(gen, fft, samplingRate)
	}
	if err := tap.SetListener(listener, rate); err != nil {
		return fmt.Errorf("set listener at %d mHz: %w", rate, err)
	}

	if err := guard("enable", func() error { return tap.SetEnabled(true) }); err != nil {
		return fmt.Errorf("enable: %w", err)
	}
	s.log.Debugf("tap configured (capture size %d, rate %d mHz)", maxSize, rate)
	return nil
}

// Stop disables and releases the tap. Errors from either step are logged
// and returned in the Result, but the session is stopped regardless.
// Stopping a stopped session is a no-op.
func (s *Session) Stop() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tap == nil {
		return Result{Outcome: AlreadyStopped}
	}

	tap := s.tap
	s.tap = nil
	s.generation.Add(1)

	var errs []error
	if err := guard("disable", func() error { return tap.SetEnabled(false) }); err != nil {
		s.log.Errorf("error while disabling tap: %v", err)
		errs = append(errs, fmt.Errorf("disable: %w", err))
	}
	if err := guard("release", tap.Release); err != nil {
		s.log.Errorf("error while releasing tap: %v", err)
		errs = append(errs, fmt.Errorf("release: %w", err))
	}

	s.log.Infof("capture stopped")
	return Result{Outcome: Stopped, Err: errors.Join(errs...)}
}

// Running reports whether a tap is currently held.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap != nil
}

// Bands returns the latest published snapshot without blocking.
func (s *Session) Bands() bands.FrequencyBands {
	return s.pub.Load()
}

// Subscribe returns an ordered feed of every snapshot published from now on.
func (s *Session) Subscribe(ctx context.Context) *bands.Subscription {
	return s.pub.Subscribe(ctx)
}

// Publisher exposes the snapshot holder for consumers that poll.
func (s *Session) Publisher() *bands.Publisher {
	return s.pub
}

// Captures returns the number of captures processed so far.
func (s *Session) Captures() uint64 {
	return s.captures.Load()
}

// Close stops the session and ends every subscription. The last snapshot
// remains readable.
func (s *Session) Close() error {
	res := s.Stop()
	s.pub.Close()
	return res.Err
}

// onCapture runs on the tap's callback goroutine.
func (s *Session) onCapture(gen uint64, fft []byte, samplingRate int) {
	if s.generation.Load() != gen {
		return // late delivery from a stopped tap
	}
	s.pub.Publish(s.analyzer.Process(fft, samplingRate))
	s.captures.Add(1)
}

// guard runs a tap call, turning a panic into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	return fn()
}

func guardOpen(open Opener) (tap Tap, err error) {
	err = guard("open", func() error {
		var oerr error
		tap, oerr = open()
		return oerr
	})
	if err == nil && tap == nil {
		err = errors.New("opener returned no tap")
	}
	if err != nil {
		return nil, err
	}
	return tap, nil
}

// Follow starts the session whenever playing delivers true and stops it on
// false. When playing is closed or ctx is done the session is stopped and
// Follow returns.
func Follow(ctx context.Context, s *Session, playing <-chan bool) {
	defer func() {
		if res := s.Stop(); res.Outcome == Stopped {
			s.log.Debugf("follow ended: %s", res)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-playing:
			if !ok {
				return
			}
			var res Result
			if p {
				res = s.Start()
			} else {
				res = s.Stop()
			}
			if !res.OK() {
				s.log.Warnf("playback change to playing=%v: %s", p, res)
			}
		}
	}
}
