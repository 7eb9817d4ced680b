// Package bridge adapts the embedded-webview callback message shape to
// protocol envelopes so webview traffic flows through the same router as
// every other context.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sat20-labs/walletd/internal/channel"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// callbackMessage is the wire shape the webview speaks: requests carry a
// callbackId the response must echo.
type callbackMessage struct {
	Type       string          `json:"type"` // "request", "response", "event"
	CallbackID string          `json:"callbackId,omitempty"`
	Action     protocol.Action `json:"action,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	Error      *protocol.Error `json:"error,omitempty"`
}

// WriteFunc delivers a raw message to the webview transport.
type WriteFunc func(data []byte) error

// Bridge is a channel.Channel whose far side is the webview. Inbound
// callback messages become envelopes fed to the router; response
// envelopes are matched back to their callbackId. Requests that receive
// no response within the timeout are answered with a timeout error, and
// the late response is discarded.
type Bridge struct {
	handler channel.Handler
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	write   WriteFunc
	pending map[string]*time.Timer // callbackId -> expiry timer
	closed  bool
}

var _ channel.Channel = (*Bridge)(nil)

// New creates a bridge feeding the given handler. A zero timeout
// defaults to 30s.
func New(handler channel.Handler, timeout time.Duration, logger *slog.Logger) *Bridge {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{
		handler: handler,
		timeout: timeout,
		logger:  logger.With("component", "webview-bridge"),
		pending: make(map[string]*time.Timer),
	}
}

// Attach connects the webview transport's write side.
func (b *Bridge) Attach(write WriteFunc) {
	b.mu.Lock()
	b.write = write
	b.mu.Unlock()
}

// Name returns the logical channel name the bridge registers under.
func (b *Bridge) Name() string { return protocol.ChannelWebview }

// HandleInbound processes one raw message from the webview.
func (b *Bridge) HandleInbound(raw []byte) error {
	var msg callbackMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed webview message: %w", err)
	}

	switch msg.Type {
	case "request":
		if msg.CallbackID == "" {
			return fmt.Errorf("webview request without callbackId")
		}
		b.track(msg.CallbackID)
		env := protocol.Envelope{
			Type:   protocol.TypeRequest,
			Action: msg.Action,
			Data:   msg.Data,
			Metadata: protocol.Metadata{
				MessageID: msg.CallbackID,
				From:      protocol.ContextWebview,
				To:        protocol.ContextBackground,
				Origin:    msg.Origin,
			},
		}
		b.handler(protocol.ChannelWebview, env)
		return nil

	case "event":
		env := protocol.Envelope{
			Type:   protocol.TypeEvent,
			Action: msg.Action,
			Data:   msg.Data,
			Metadata: protocol.Metadata{
				MessageID: uuid.New().String(),
				From:      protocol.ContextWebview,
				To:        protocol.ContextBackground,
				Origin:    msg.Origin,
			},
		}
		b.handler(protocol.ChannelWebview, env)
		return nil

	default:
		return fmt.Errorf("unknown webview message type: %q", msg.Type)
	}
}

// Send delivers an envelope to the webview. Responses are correlated to
// their pending callbackId; envelopes for callbacks that already timed
// out are dropped. Events pass straight through.
func (b *Bridge) Send(env protocol.Envelope) error {
	if env.Type == protocol.TypeEvent {
		return b.writeMessage(callbackMessage{
			Type:   "event",
			Action: env.Action,
			Data:   env.Data,
		})
	}

	if !b.resolve(env.Metadata.MessageID) {
		b.logger.Debug("late response discarded",
			"callback_id", env.Metadata.MessageID, "action", env.Action)
		return nil
	}
	return b.writeMessage(callbackMessage{
		Type:       "response",
		CallbackID: env.Metadata.MessageID,
		Action:     env.Action,
		Data:       env.Data,
		Error:      env.Error,
	})
}

// Close cancels all pending callbacks without answering them.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, timer := range b.pending {
		timer.Stop()
		delete(b.pending, id)
	}
	return nil
}

// track registers a callbackId and arms its timeout.
func (b *Bridge) track(callbackID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if prev, ok := b.pending[callbackID]; ok {
		prev.Stop()
	}
	b.pending[callbackID] = time.AfterFunc(b.timeout, func() {
		b.expire(callbackID)
	})
}

// resolve removes a pending callbackId, reporting whether it was still
// live.
func (b *Bridge) resolve(callbackID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	timer, ok := b.pending[callbackID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(b.pending, callbackID)
	return true
}

func (b *Bridge) expire(callbackID string) {
	if !b.resolve(callbackID) {
		return
	}
	b.logger.Warn("webview request timed out", "callback_id", callbackID)
	_ = b.writeMessage(callbackMessage{
		Type:       "response",
		CallbackID: callbackID,
		Error:      protocol.ErrTimeout,
	})
}

func (b *Bridge) writeMessage(msg callbackMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	write := b.write
	closed := b.closed
	b.mu.Unlock()

	if closed || write == nil {
		return channel.ErrClosed
	}
	return write(data)
}
