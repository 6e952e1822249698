// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"bandtap/internal/bands"
	applog "bandtap/internal/log"
)

// LoggingTransport writes every snapshot to the debug log.
type LoggingTransport struct {
	log  *applog.Logger
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: applog.Named("bands")}
	lt.log.Infof("console feed enabled (visible at debug level)")
	return lt
}

// Send logs the snapshot as JSON.
func (lt *LoggingTransport) Send(b bands.FrequencyBands) error {
	n := lt.sent.Add(1)
	lt.log.Debugf("#%d %s", n, b.JSON())
	return nil
}

// Sent returns the number of snapshots logged.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.sent.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("console feed closed after %d snapshots", lt.sent.Load())
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
