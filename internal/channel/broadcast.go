package channel

import (
	"sync"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Group is the same-page broadcast channel: a fan-out bus for contexts
// that share no other means of contact (the injected page and the content
// relay live in the same page and meet only here). Subscribers receive
// envelopes on a buffered channel; slow subscribers are dropped rather
// than blocking the publisher.
type Group struct {
	mu   sync.RWMutex
	subs map[chan protocol.Envelope]struct{}
}

// NewGroup creates an empty broadcast group.
func NewGroup() *Group {
	return &Group{subs: make(map[chan protocol.Envelope]struct{})}
}

// Subscribe returns a buffered channel that receives every published
// envelope.
func (g *Group) Subscribe() chan protocol.Envelope {
	ch := make(chan protocol.Envelope, 64)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (g *Group) Unsubscribe(ch chan protocol.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.subs[ch]; ok {
		delete(g.subs, ch)
		close(ch)
	}
}

// Publish fans an envelope out to all subscribers. Non-blocking: if a
// subscriber's buffer is full the envelope is dropped for that subscriber.
func (g *Group) Publish(env protocol.Envelope) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for ch := range g.subs {
		select {
		case ch <- env:
		default:
			// slow subscriber, drop
		}
	}
}

// Close unsubscribes everyone and closes their channels.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ch := range g.subs {
		close(ch)
		delete(g.subs, ch)
	}
}
