// SPDX-License-Identifier: MIT

// Package transport forwards band snapshots to consumers outside the
// process.
package transport

import (
	"context"

	"bandtap/internal/bands"
	applog "bandtap/internal/log"
)

// Transport delivers snapshots to one kind of consumer. Implementations
// must be safe for concurrent use.
type Transport interface {
	Send(b bands.FrequencyBands) error
	Close() error
}

// Source is the read side of a bands publisher.
type Source interface {
	Load() bands.FrequencyBands
	Seq() uint64
}

var _ Source = (*bands.Publisher)(nil)

// Pump forwards every snapshot from sub to t until the subscription ends or
// ctx is done. Send errors are logged and do not stop the pump.
func Pump(ctx context.Context, sub *bands.Subscription, t Transport) error {
	log := applog.Named("transport")
	for {
		select {
		case <-ctx.Done():
			sub.Cancel()
			return ctx.Err()
		case b, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := t.Send(b); err != nil {
				log.Warnf("send failed: %v", err)
			}
		}
	}
}
