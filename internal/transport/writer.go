// SPDX-License-Identifier: MIT
package transport

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"bandtap/internal/bands"
)

// LinesTransport writes each snapshot as one JSON line.
type LinesTransport struct {
	mu   sync.Mutex
	w    *bufio.Writer
	sent atomic.Uint64
}

// NewLinesTransport writes to w. Output is flushed after every line.
func NewLinesTransport(w io.Writer) *LinesTransport {
	return &LinesTransport{w: bufio.NewWriter(w)}
}

func (lt *LinesTransport) Send(b bands.FrequencyBands) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.w.WriteString(b.JSON())
	lt.w.WriteByte('\n')
	if err := lt.w.Flush(); err != nil {
		return err
	}
	lt.sent.Add(1)
	return nil
}

// Sent returns the number of lines written.
func (lt *LinesTransport) Sent() uint64 {
	return lt.sent.Load()
}

func (lt *LinesTransport) Close() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.w.Flush()
}

var _ Transport = (*LinesTransport)(nil)
