// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"bandtap/internal/audio"
	"bandtap/internal/bands"
	"bandtap/internal/capture"
	"bandtap/internal/config"
	applog "bandtap/internal/log"
	"bandtap/internal/transport"
	"bandtap/internal/transport/udp"
	"bandtap/internal/tui"
)

// drainTimeout bounds the wait for consumers to catch up after a file ends.
const drainTimeout = 5 * time.Second

func newAnalyzer(cfg *config.Config) (*bands.Analyzer, error) {
	return bands.NewAnalyzer(cfg.Analysis.Bands, cfg.Analysis.RateDivisor)
}

// runLive captures the configured device until ctx is done or the meter
// is closed.
func runLive(ctx context.Context, cfg *config.Config, opts *options) error {
	log := applog.Named("main")

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			log.Warnf("%v", err)
		}
	}()

	if opts.pick {
		sel, err := tui.PickDevice()
		if err != nil {
			return err
		}
		cfg.Capture.Device = sel.Device.ID
		cfg.Capture.SampleRate = sel.SampleRate
	}

	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}
	var recordDir string
	if cfg.Recording.Enabled {
		recordDir = cfg.Recording.OutputDir
	}

	session := capture.NewSession(func() (capture.Tap, error) {
		return capture.NewPortAudioTap(cfg.Capture, recordDir)
	}, analyzer)
	defer func() {
		if err := session.Close(); err != nil {
			log.Warnf("closing session: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	closers, err := startTransports(gctx, g, cfg, session)
	defer closeAll(log, closers)
	if err != nil {
		return err
	}

	// The meter can retry a failed start; headless runs cannot.
	if res := session.Start(); !res.OK() {
		if !opts.tui && res.Outcome == capture.Failed {
			return res.Err
		}
		log.Warnf("capture %s", res)
	}

	if opts.tui {
		sub := session.Subscribe(gctx)
		g.Go(func() error {
			defer cancel()
			return tui.RunMeter(sub.C(), session)
		})
	} else {
		log.Infof("capturing, press Ctrl+C to stop")
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return ignoreCanceled(g.Wait())
}

// runAnalyze runs a file through a session and writes one JSON line per
// capture to out.
func runAnalyze(ctx context.Context, cfg *config.Config, opts *options, path string, out io.Writer) error {
	window, err := capture.ParseWindowFunc(cfg.Capture.Window)
	if err != nil {
		return err
	}
	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}
	tap, err := capture.OpenFileTap(path, cfg.Capture.MaxCaptureSize, cfg.Capture.MaxCaptureRate, window, !opts.fast)
	if err != nil {
		return err
	}
	defer tap.Release()

	opened := false
	session := capture.NewSession(func() (capture.Tap, error) {
		if opened {
			return nil, fmt.Errorf("%s has already been played", path)
		}
		opened = true
		return tap, nil
	}, analyzer)

	lines := transport.NewLinesTransport(out)
	sub := session.Subscribe(context.Background())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// The file reports playing until it runs out.
	playing := make(chan bool)
	g.Go(func() error {
		defer close(playing)
		select {
		case playing <- true:
		case <-gctx.Done():
			return nil
		}
		select {
		case <-tap.Done():
		case <-gctx.Done():
			return nil
		}
		select {
		case playing <- false:
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		capture.Follow(gctx, session, playing)
		waitDrained(gctx, session.Publisher(), lines)
		cancel()
		return nil
	})
	g.Go(func() error {
		return transport.Pump(gctx, sub, lines)
	})

	err = ignoreCanceled(g.Wait())
	return errors.Join(err, session.Close(), lines.Close())
}

// waitDrained blocks until lines has written every published snapshot.
func waitDrained(ctx context.Context, pub *bands.Publisher, lines *transport.LinesTransport) {
	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for lines.Sent() < pub.Seq() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// startTransports starts the consumers enabled in cfg. The returned closers
// must be closed even when an error is returned.
func startTransports(ctx context.Context, g *errgroup.Group, cfg *config.Config, session *capture.Session) ([]io.Closer, error) {
	var closers []io.Closer
	pump := func(t transport.Transport) {
		sub := session.Subscribe(ctx)
		g.Go(func() error { return transport.Pump(ctx, sub, t) })
	}

	tc := cfg.Transport
	if tc.WSEnabled {
		wst := transport.NewWebSocketTransport(tc.WSAddress, session.Publisher())
		closers = append(closers, wst)
		if err := wst.Start(); err != nil {
			return closers, fmt.Errorf("websocket: %w", err)
		}
		pump(wst)
	}

	if tc.UDPEnabled {
		sender, err := udp.NewSender(tc.UDPTargetAddress)
		if err != nil {
			return closers, err
		}
		p, err := udp.NewPublisher(tc.UDPSendInterval, sender, session.Publisher())
		if err != nil {
			sender.Close()
			return closers, err
		}
		closers = append(closers, p)
		p.Start()
	}

	if tc.LogEnabled {
		lt := transport.NewLoggingTransport()
		closers = append(closers, lt)
		pump(lt)
	}
	return closers, nil
}

func closeAll(log *applog.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warnf("close: %v", err)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
