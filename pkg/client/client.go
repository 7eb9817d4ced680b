// Package client is the sender-side library for walletd: it issues
// requests toward the background and correlates responses strictly by
// message identifier.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// SendFunc delivers an envelope toward the background.
type SendFunc func(env protocol.Envelope) error

// Options configures a Client.
type Options struct {
	// Send delivers outbound envelopes; required unless Dial is used.
	Send SendFunc
	// Origin is stamped on every request's metadata.
	Origin string
	// From is the sending context; defaults to the injected context.
	From protocol.Context
	// Timeout is the per-request deadline; defaults to 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client issues requests and matches responses by messageId. Responses
// arriving after their request timed out are discarded.
type Client struct {
	send    SendFunc
	origin  string
	from    protocol.Context
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan protocol.Envelope
}

// New creates a client over an existing transport.
func New(opts Options) *Client {
	if opts.From == "" {
		opts.From = protocol.ContextInjected
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		send:    opts.Send,
		origin:  opts.Origin,
		from:    opts.From,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("component", "wallet-client"),
		pending: make(map[string]chan protocol.Envelope),
	}
}

// Request sends a REQUEST envelope and blocks until its response, the
// per-request timeout, or context cancellation. A response carrying a
// protocol error is returned as that error.
func (c *Client) Request(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	return c.roundTrip(ctx, protocol.TypeRequest, action, data)
}

// RequestApproval sends an APPROVE envelope and blocks until the user's
// decision comes back.
func (c *Client) RequestApproval(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	return c.roundTrip(ctx, protocol.TypeApprove, action, data)
}

// Notify sends a fire-and-forget EVENT envelope.
func (c *Client) Notify(action protocol.Action, data json.RawMessage) error {
	return c.send(protocol.Envelope{
		Type:   protocol.TypeEvent,
		Action: action,
		Data:   data,
		Metadata: protocol.Metadata{
			MessageID: uuid.New().String(),
			From:      c.from,
			To:        protocol.ContextBackground,
			Origin:    c.origin,
		},
	})
}

func (c *Client) roundTrip(ctx context.Context, typ protocol.MessageType, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	id := uuid.New().String()
	ch := make(chan protocol.Envelope, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	env := protocol.Envelope{
		Type:   typ,
		Action: action,
		Data:   data,
		Metadata: protocol.Metadata{
			MessageID: id,
			From:      c.from,
			To:        protocol.ContextBackground,
			Origin:    c.origin,
		},
	}
	if err := c.send(env); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Data, nil
	case <-timer.C:
		return nil, protocol.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleResponse feeds an inbound envelope to the client. Envelopes that
// match no pending request are discarded; events are ignored here and
// should be observed via the transport's own handler.
func (c *Client) HandleResponse(env protocol.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.Metadata.MessageID]
	if ok {
		delete(c.pending, env.Metadata.MessageID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("unmatched response discarded",
			"message_id", env.Metadata.MessageID, "action", env.Action)
		return
	}
	ch <- env
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
