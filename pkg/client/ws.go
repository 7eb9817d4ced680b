package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sat20-labs/walletd/internal/channel"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// EventHandler observes EVENT envelopes pushed by the background.
type EventHandler func(env protocol.Envelope)

// DialOptions configures Dial.
type DialOptions struct {
	// URL is the background WebSocket endpoint, e.g.
	// ws://127.0.0.1:18332/ws/content.
	URL string
	// Token is the bearer token presented during the handshake.
	Token string
	// OnEvent, if set, receives pushed events.
	OnEvent EventHandler
	// TLSSkipVerify disables certificate verification.
	TLSSkipVerify bool

	Options
}

// Conn is a Client bound to a live WebSocket connection. Pushed events
// fan out to every subscriber, so one connection can serve several pages.
type Conn struct {
	*Client

	events *channel.Group

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// Dial connects to the background and returns a ready client. The read
// loop feeds responses back into the client and events to OnEvent.
func Dial(ctx context.Context, opts DialOptions) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if opts.TLSSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	wsConn, _, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial background: %w", err)
	}

	c := &Conn{
		events: channel.NewGroup(),
		conn:   wsConn,
		done:   make(chan struct{}),
	}
	opts.Options.Send = c.writeEnvelope
	c.Client = New(opts.Options)

	go c.readLoop(opts.OnEvent)
	return c, nil
}

// Close shuts down the connection. Requests in flight fail with their
// timeout.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.events.Close()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
	return c.conn.Close()
}

// Subscribe returns a channel receiving every pushed event. Slow
// subscribers drop events instead of stalling the read loop.
func (c *Conn) Subscribe() chan protocol.Envelope {
	return c.events.Subscribe()
}

// Unsubscribe removes an event subscriber.
func (c *Conn) Unsubscribe(ch chan protocol.Envelope) {
	c.events.Unsubscribe(ch)
}

func (c *Conn) writeEnvelope(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop(onEvent EventHandler) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Warn("invalid envelope from background", "error", err)
			continue
		}

		if env.Type == protocol.TypeEvent {
			c.events.Publish(env)
			if onEvent != nil {
				onEvent(env)
			}
			continue
		}
		c.HandleResponse(env)
	}
}
