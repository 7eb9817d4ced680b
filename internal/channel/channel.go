// Package channel provides the duplex message channels that connect
// walletd contexts, and the registry that tracks them by logical name.
package channel

import (
	"errors"
	"sync"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// ErrClosed is returned by Send on a closed channel.
var ErrClosed = errors.New("channel closed")

// Handler processes an inbound envelope delivered by a channel. The first
// argument is the logical name of the channel the envelope arrived on.
type Handler func(channelName string, env protocol.Envelope)

// Channel is a bidirectional, message-oriented connection to another
// context. Send failures signal delivery problems; they are not fatal to
// the caller.
type Channel interface {
	Name() string
	Send(env protocol.Envelope) error
	Close() error
}

// Pipe is an in-process duplex channel pair. Envelopes sent on one end are
// delivered to the other end's handler on a dedicated goroutine. It backs
// the popup shell in-process attach and the test harnesses.
type Pipe struct {
	name    string
	peer    *Pipe
	inbox   chan protocol.Envelope
	handler Handler

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPipe creates a connected pair of channels sharing a logical name.
// Each end delivers to its own handler; a nil handler discards.
func NewPipe(name string, a, b Handler) (*Pipe, *Pipe) {
	left := &Pipe{name: name, inbox: make(chan protocol.Envelope, 64), handler: a, done: make(chan struct{})}
	right := &Pipe{name: name, inbox: make(chan protocol.Envelope, 64), handler: b, done: make(chan struct{})}
	left.peer = right
	right.peer = left
	go left.deliverLoop()
	go right.deliverLoop()
	return left, right
}

func (p *Pipe) deliverLoop() {
	for {
		select {
		case env := <-p.inbox:
			if p.handler != nil {
				p.handler(p.name, env)
			}
		case <-p.done:
			return
		}
	}
}

// Name returns the channel's logical name.
func (p *Pipe) Name() string { return p.name }

// Send delivers an envelope to the peer end.
func (p *Pipe) Send(env protocol.Envelope) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	p.peer.mu.Lock()
	peerClosed := p.peer.closed
	p.peer.mu.Unlock()
	if peerClosed {
		return ErrClosed
	}

	select {
	case p.peer.inbox <- env:
		return nil
	case <-p.peer.done:
		return ErrClosed
	}
}

// Close shuts down this end. Both ends observe the closure.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return nil
}
