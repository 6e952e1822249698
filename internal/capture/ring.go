// SPDX-License-Identifier: MIT
package capture

// history keeps the most recent len(buf) mono samples.
type history struct {
	buf []float64
	pos int
}

func newHistory(size int) *history {
	return &history{buf: make([]float64, size)}
}

func (h *history) write(v float64) {
	h.buf[h.pos] = v
	h.pos++
	if h.pos == len(h.buf) {
		h.pos = 0
	}
}

// snapshot copies the samples into dst oldest first. dst must have the
// same length as the history.
func (h *history) snapshot(dst []float64) {
	n := copy(dst, h.buf[h.pos:])
	copy(dst[n:], h.buf[:h.pos])
}
