package channel

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// WSChannel is a Channel backed by a WebSocket connection. Writes are
// serialized by a mutex; a read loop decodes inbound envelopes and feeds
// them to the handler.
type WSChannel struct {
	name    string
	handler Handler
	onClose func(*WSChannel)
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWS wraps an accepted WebSocket connection as a named channel and
// starts its read loop. onClose fires once with the channel itself when
// the transport drops, after which the channel rejects sends; receiving
// the channel lets the registry tell a dying connection's teardown apart
// from its replacement's.
func NewWS(name string, conn *websocket.Conn, handler Handler, onClose func(*WSChannel), logger *slog.Logger) *WSChannel {
	ch := &WSChannel{
		name:    name,
		handler: handler,
		onClose: onClose,
		logger:  logger.With("component", "ws-channel", "name", name),
		conn:    conn,
	}
	go ch.readLoop()
	return ch
}

// Name returns the channel's logical name.
func (c *WSChannel) Name() string { return c.name }

// Send writes an envelope as a JSON text message.
func (c *WSChannel) Send(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts down the transport. Idempotent.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *WSChannel) readLoop() {
	defer func() {
		_ = c.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read error", "error", err)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Warn("invalid envelope", "error", err)
			continue
		}
		if c.handler != nil {
			c.handler(c.name, env)
		}
	}
}
