// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"bandtap/internal/bands"
	applog "bandtap/internal/log"
)

/*
Packet layout (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |  Value Count  |         Values          |
|      (uint32)     |   (int64, unix ns)    |    (uint16)   |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+

Values are bass, mid and treble in that order, so N is 3.
*/

const (
	headerSize  = 4 + 8 + 2
	bandCount   = 3
	PacketSize  = headerSize + bandCount*4
	minInterval = time.Millisecond
)

// ErrShortPacket is returned by ParsePacket for truncated datagrams.
var ErrShortPacket = errors.New("udp packet too short")

// Source is the read side of a bands publisher.
type Source interface {
	Load() bands.FrequencyBands
}

// Packet is one decoded datagram.
type Packet struct {
	Seq       uint32
	Timestamp time.Time
	Bands     bands.FrequencyBands
}

// Publisher samples the latest snapshot on a ticker and sends it as a
// binary datagram.
type Publisher struct {
	sender   *Sender
	src      Source
	interval time.Duration
	log      *applog.Logger

	mu     sync.Mutex // Protects ticker and done during Start/Stop
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	seq    uint32
	packet bytes.Buffer
	values [bandCount]float32
}

// NewPublisher creates a publisher sending src's value every interval.
// Intervals below a millisecond default to DefaultInterval.
func NewPublisher(interval time.Duration, sender *Sender, src Source) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	if src == nil {
		return nil, errors.New("udp publisher: source cannot be nil")
	}

	log := applog.Named("udp")
	if interval < minInterval {
		log.Warnf("invalid interval %s, defaulting to %s", interval, DefaultInterval)
		interval = DefaultInterval
	}
	return &Publisher{sender: sender, src: src, interval: interval, log: log}, nil
}

// DefaultInterval is roughly 60 packets per second.
const DefaultInterval = 16 * time.Millisecond

// Start launches the send loop. Calling Start on a running publisher is a
// no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.done = make(chan struct{})
	ticker, done := p.ticker, p.done
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Infof("publishing every %s", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the send loop and waits for it to exit.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.done)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Close stops publishing and closes the sender.
func (p *Publisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

// publish runs on the send loop only.
func (p *Publisher) publish() {
	p.seq++
	pkt := p.encode(p.seq, time.Now(), p.src.Load())
	if err := p.sender.Send(pkt); err != nil {
		return // logged by the sender
	}
	p.log.Debugf("sent packet %d (%d bytes)", p.seq, len(pkt))
}

func (p *Publisher) encode(seq uint32, ts time.Time, b bands.FrequencyBands) []byte {
	p.values = [bandCount]float32{float32(b.Bass), float32(b.Mid), float32(b.Treble)}

	p.packet.Reset()
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[0:], seq)
	binary.BigEndian.PutUint64(hdr[4:], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint16(hdr[12:], bandCount)
	p.packet.Write(hdr[:])

	var v [4]byte
	for _, f := range p.values {
		binary.BigEndian.PutUint32(v[:], math.Float32bits(f))
		p.packet.Write(v[:])
	}
	return p.packet.Bytes()
}

// ParsePacket decodes a datagram produced by Publisher.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}
	count := int(binary.BigEndian.Uint16(data[12:]))
	if count < bandCount || len(data) < headerSize+count*4 {
		return Packet{}, fmt.Errorf("%w: %d bytes for %d values", ErrShortPacket, len(data), count)
	}

	value := func(i int) float64 {
		off := headerSize + i*4
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data[off:])))
	}
	return Packet{
		Seq:       binary.BigEndian.Uint32(data[0:]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(data[4:]))),
		Bands:     bands.FrequencyBands{Bass: value(0), Mid: value(1), Treble: value(2)},
	}, nil
}
