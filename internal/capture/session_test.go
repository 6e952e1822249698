// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bandtap/internal/bands"
)

const waitTimeout = 2 * time.Second

// fakeTap is a scriptable Tap.
type fakeTap struct {
	tapConfig

	enableErr, disableErr, releaseErr error
	panicOnEnable                     bool
	enableCalls                       int
}

func newFakeTap() *fakeTap {
	return &fakeTap{tapConfig: newTapConfig(1024, 20000)}
}

func (f *fakeTap) SetEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enableCalls++
	if f.released {
		return ErrReleased
	}
	if enabled {
		if f.panicOnEnable {
			panic("driver exploded")
		}
		if f.enableErr != nil {
			return f.enableErr
		}
	} else if f.disableErr != nil {
		return f.disableErr
	}
	f.enabled = enabled
	return nil
}

func (f *fakeTap) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	f.enabled = false
	return f.releaseErr
}

// deliver invokes the registered listener like a platform callback would,
// even if the tap has since been disabled.
func (f *fakeTap) deliver(buf []byte, rate int) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l(buf, rate)
	}
}

func (f *fakeTap) state() (size, rate int, enabled, released bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size, f.rate, f.enabled, f.released
}

// openerFor hands out the given taps in order.
func openerFor(taps ...*fakeTap) Opener {
	var mu sync.Mutex
	return func() (Tap, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(taps) == 0 {
			return nil, errors.New("no capture device")
		}
		t := taps[0]
		taps = taps[1:]
		return t, nil
	}
}

// bassBuffer puts magnitude 5 at 100 Hz when delivered at 400000 mHz.
var bassBuffer = []byte{0, 0, 3, 4}

func TestSessionStartConfiguresTap(t *testing.T) {
	tap := newFakeTap()
	tap.size = MinCaptureSize
	s := NewSession(openerFor(tap), nil)

	if res := s.Start(); res.Outcome != Started || !res.OK() {
		t.Fatalf("Start() = %s", res)
	}
	size, rate, enabled, _ := tap.state()
	if size != 1024 {
		t.Errorf("capture size = %d, want the maximum 1024", size)
	}
	if rate != 10000 {
		t.Errorf("capture rate = %d, want half the maximum", rate)
	}
	if !enabled || !s.Running() {
		t.Error("tap should be enabled and session running")
	}

	if res := s.Start(); res.Outcome != AlreadyStarted || !res.OK() {
		t.Errorf("second Start() = %s", res)
	}
	if tap.enableCalls != 1 {
		t.Errorf("SetEnabled called %d times, want 1", tap.enableCalls)
	}
}

func TestSessionStopStartStop(t *testing.T) {
	first, second := newFakeTap(), newFakeTap()
	s := NewSession(openerFor(first, second), nil)

	if res := s.Stop(); res.Outcome != AlreadyStopped || !res.OK() {
		t.Errorf("Stop() on new session = %s", res)
	}
	if res := s.Start(); res.Outcome != Started {
		t.Fatalf("Start() = %s", res)
	}
	if res := s.Stop(); res.Outcome != Stopped || !res.OK() {
		t.Errorf("Stop() = %s", res)
	}
	if _, _, enabled, released := first.state(); enabled || !released {
		t.Error("first tap should be disabled and released")
	}
	if res := s.Stop(); res.Outcome != AlreadyStopped {
		t.Errorf("double Stop() = %s", res)
	}

	if res := s.Start(); res.Outcome != Started {
		t.Fatalf("restart = %s", res)
	}
	if res := s.Stop(); res.Outcome != Stopped {
		t.Errorf("Stop() after restart = %s", res)
	}
	if _, _, _, released := second.state(); !released {
		t.Error("second tap should be released")
	}
}

func TestSessionStartFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeTap)
		wantErr string
	}{
		{"capture size rejected", func(f *fakeTap) { f.maxSize = 100 }, "set capture size"},
		{"listener rejected", func(f *fakeTap) { f.maxRate = 1 }, "set listener"},
		{"enable fails", func(f *fakeTap) { f.enableErr = errors.New("busy") }, "busy"},
		{"enable panics", func(f *fakeTap) { f.panicOnEnable = true }, "panicked"},
		{"released tap", func(f *fakeTap) { f.released = true }, ErrReleased.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tap := newFakeTap()
			tt.setup(tap)
			s := NewSession(openerFor(tap), nil)

			res := s.Start()
			if res.Outcome != Failed || res.OK() {
				t.Fatalf("Start() = %s, want failed", res)
			}
			if !strings.Contains(res.Err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", res.Err, tt.wantErr)
			}
			if s.Running() {
				t.Error("failed Start must leave the session stopped")
			}
			if _, _, _, released := tap.state(); !released {
				t.Error("failed Start must release the tap")
			}
			if res := s.Stop(); res.Outcome != AlreadyStopped {
				t.Errorf("Stop() after failed Start = %s", res)
			}
		})
	}
}

func TestSessionStartOpenFailureCanRetry(t *testing.T) {
	tap := newFakeTap()
	attempts := 0
	s := NewSession(func() (Tap, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("device busy")
		}
		return tap, nil
	}, nil)

	if res := s.Start(); res.Outcome != Failed {
		t.Fatalf("Start() = %s, want failed", res)
	}
	if res := s.Start(); res.Outcome != Started {
		t.Fatalf("retry Start() = %s", res)
	}
	s.Stop()
}

func TestSessionStopErrorsForceStopped(t *testing.T) {
	tap := newFakeTap()
	tap.disableErr = errors.New("disable failed")
	tap.releaseErr = errors.New("release failed")
	s := NewSession(openerFor(tap, newFakeTap()), nil)

	s.Start()
	res := s.Stop()
	if res.Outcome != Stopped || res.OK() {
		t.Fatalf("Stop() = %s, want stopped with error", res)
	}
	for _, want := range []string{"disable failed", "release failed"} {
		if !strings.Contains(res.Err.Error(), want) {
			t.Errorf("error %q missing %q", res.Err, want)
		}
	}
	if s.Running() {
		t.Error("session must be stopped after a failed teardown")
	}
	if res := s.Start(); res.Outcome != Started {
		t.Errorf("Start() after failed teardown = %s", res)
	}
}

func TestSessionPublishesCaptures(t *testing.T) {
	tap := newFakeTap()
	s := NewSession(openerFor(tap), nil)
	sub := s.Subscribe(context.Background())
	defer sub.Cancel()

	if !s.Bands().IsZero() {
		t.Fatalf("Bands() before any capture = %+v", s.Bands())
	}
	s.Start()
	tap.deliver(bassBuffer, 400000)

	want := bands.FrequencyBands{Bass: 5}
	if got := s.Bands(); got != want {
		t.Errorf("Bands() = %+v, want %+v", got, want)
	}
	select {
	case got := <-sub.C():
		if got != want {
			t.Errorf("subscription got %+v, want %+v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no update on subscription")
	}
	if s.Captures() != 1 {
		t.Errorf("Captures() = %d, want 1", s.Captures())
	}
}

func TestSessionIgnoresLateCaptures(t *testing.T) {
	tap := newFakeTap()
	s := NewSession(openerFor(tap), nil)
	s.Start()
	s.Stop()

	tap.deliver(bassBuffer, 400000)
	if !s.Bands().IsZero() || s.Captures() != 0 {
		t.Errorf("capture after Stop was published: %+v", s.Bands())
	}
}

func TestSessionCustomAnalyzer(t *testing.T) {
	a, err := bands.NewAnalyzer([]bands.Band{{Name: bands.MidName, LowHz: 50, HighHz: 150}}, bands.DefaultRateDivisor)
	if err != nil {
		t.Fatal(err)
	}
	tap := newFakeTap()
	s := NewSession(openerFor(tap), a)
	s.Start()
	defer s.Stop()

	tap.deliver(bassBuffer, 400000)
	if got, want := s.Bands(), (bands.FrequencyBands{Mid: 5}); got != want {
		t.Errorf("Bands() = %+v, want %+v", got, want)
	}
}

func TestSessionStopDuringCaptures(t *testing.T) {
	var taps []*fakeTap
	for range 50 {
		taps = append(taps, newFakeTap())
	}
	s := NewSession(openerFor(taps...), nil)

	var current sync.Map
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			current.Range(func(_, v any) bool {
				v.(*fakeTap).deliver(bassBuffer, 400000)
				return true
			})
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tap := range taps {
			current.Store(0, tap)
			s.Start()
			s.Stop()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start/Stop deadlocked against captures")
	}
	cancel()
	wg.Wait()

	if s.Running() {
		t.Error("session should end stopped")
	}
	if b := s.Bands(); !b.IsZero() && b != (bands.FrequencyBands{Bass: 5}) {
		t.Errorf("unexpected bands %+v", b)
	}
}

func TestSessionClose(t *testing.T) {
	tap := newFakeTap()
	s := NewSession(openerFor(tap), nil)
	sub := s.Subscribe(context.Background())
	s.Start()
	tap.deliver(bassBuffer, 400000)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				if s.Bands().Bass != 5 {
					t.Errorf("last snapshot lost after Close: %+v", s.Bands())
				}
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed by Close")
		}
	}
}

func TestFollow(t *testing.T) {
	s := NewSession(openerFor(newFakeTap(), newFakeTap()), nil)
	playing := make(chan bool)
	returned := make(chan struct{})
	go func() {
		Follow(context.Background(), s, playing)
		close(returned)
	}()

	waitFor := func(want bool) {
		t.Helper()
		deadline := time.Now().Add(waitTimeout)
		for s.Running() != want {
			if time.Now().After(deadline) {
				t.Fatalf("Running() never became %v", want)
			}
			time.Sleep(time.Millisecond)
		}
	}

	playing <- true
	waitFor(true)
	playing <- true
	playing <- false
	waitFor(false)
	playing <- true
	waitFor(true)
	close(playing)

	select {
	case <-returned:
	case <-time.After(waitTimeout):
		t.Fatal("Follow did not return after the channel closed")
	}
	if s.Running() {
		t.Error("Follow must stop the session on exit")
	}
}

func TestFollowContextCancel(t *testing.T) {
	s := NewSession(openerFor(newFakeTap()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	playing := make(chan bool, 1)
	playing <- true

	returned := make(chan struct{})
	go func() {
		Follow(ctx, s, playing)
		close(returned)
	}()
	for !s.Running() {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-returned:
	case <-time.After(waitTimeout):
		t.Fatal("Follow ignored context cancellation")
	}
	if s.Running() {
		t.Error("Follow must stop the session on exit")
	}
}

func TestResultString(t *testing.T) {
	if got := (Result{Outcome: Started}).String(); got != "started" {
		t.Errorf("String() = %q", got)
	}
	if got := (Result{Outcome: Failed, Err: errors.New("boom")}).String(); got != "failed: boom" {
		t.Errorf("String() = %q", got)
	}
}
