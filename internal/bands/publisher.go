// SPDX-License-Identifier: MIT
package bands

import (
	"context"
	"sync"
	"sync/atomic"
)

// Publisher holds the current FrequencyBands and fans every update out to
// subscribers. There is a single writer (the capture callback) and any
// number of readers.
//
// Load never blocks and never takes a lock. Publish replaces the current
// value with one atomic store, then hands the value to each subscriber's
// queue without waiting for it to be consumed.
type Publisher struct {
	current atomic.Pointer[FrequencyBands]
	seq     atomic.Uint64

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

var zeroBands = &FrequencyBands{}

// NewPublisher returns a publisher whose current value is the zero snapshot.
func NewPublisher() *Publisher {
	p := &Publisher{subs: make(map[*Subscription]struct{})}
	p.current.Store(zeroBands)
	return p
}

// Load returns the latest published snapshot, or the zero snapshot if
// nothing has been published yet.
func (p *Publisher) Load() FrequencyBands {
	return *p.current.Load()
}

// Seq returns the number of snapshots published so far.
func (p *Publisher) Seq() uint64 {
	return p.seq.Load()
}

// Publish makes b the current snapshot and queues it for every subscriber.
// Publishing after Close only updates the current value.
func (p *Publisher) Publish(b FrequencyBands) {
	p.current.Store(&b)
	p.seq.Add(1)

	p.mu.Lock()
	for s := range p.subs {
		s.enqueue(b)
	}
	p.mu.Unlock()
}

// Subscribe attaches a new subscriber that receives every snapshot
// published after this call, in order. The subscription ends when ctx is
// done, when Cancel is called, or when the publisher is closed; its channel
// is then closed. Queued snapshots are unbounded, so a slow subscriber never
// holds up the writer.
func (p *Publisher) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{
		pub:    p,
		out:    make(chan FrequencyBands),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.stop()
		close(s.out)
		return s
	}
	p.subs[s] = struct{}{}
	p.mu.Unlock()

	go s.run(ctx)
	return s
}

// Subscribers returns the number of attached subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close detaches every subscriber. The current value stays readable.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := p.subs
	p.subs = make(map[*Subscription]struct{})
	p.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (p *Publisher) detach(s *Subscription) {
	p.mu.Lock()
	delete(p.subs, s)
	p.mu.Unlock()
}

// Subscription is one consumer's ordered view of a Publisher's updates.
type Subscription struct {
	pub *Publisher

	mu    sync.Mutex
	queue []FrequencyBands

	out      chan FrequencyBands
	notify   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// C returns the channel snapshots are delivered on. It is closed when the
// subscription ends.
func (s *Subscription) C() <-chan FrequencyBands {
	return s.out
}

// Cancel detaches the subscription. It is safe to call more than once and
// from any goroutine; the publisher is unaffected.
func (s *Subscription) Cancel() {
	s.pub.detach(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(b FrequencyBands) {
	s.mu.Lock()
	s.queue = append(s.queue, b)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// run drains the queue into out until the subscription ends.
func (s *Subscription) run(ctx context.Context) {
	defer close(s.out)
	defer s.pub.detach(s)

	var pending []FrequencyBands
	for {
		if len(pending) == 0 {
			select {
			case <-s.notify:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
			s.mu.Lock()
			pending, s.queue = s.queue, pending[:0]
			s.mu.Unlock()
			continue
		}

		select {
		case s.out <- pending[0]:
			pending = pending[1:]
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
