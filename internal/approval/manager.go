// Package approval implements the interactive user-approval gate: the
// pending-approval state machine keyed by popup window identifier.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// DefaultActions is the reference set of actions requiring an interactive
// approval popup.
var DefaultActions = []protocol.Action{
	protocol.ActionRequestAccounts,
	protocol.ActionSwitchNetwork,
	protocol.ActionSendBitcoin,
	protocol.ActionSignMessage,
	protocol.ActionSignPsbt,
	protocol.ActionSignPsbts,
	protocol.ActionSendInscription,
	protocol.ActionSplitAsset,
	protocol.ActionLockUtxo,
	protocol.ActionUnlockUtxo,
}

// WindowOpener opens and closes approval popup windows. Close must be
// idempotent: closing an already-closed window is not an error.
type WindowOpener interface {
	Open(ctx context.Context, route string) (windowID string, err error)
	Close(windowID string) error
}

// Sender writes a response envelope to a named channel; false means the
// destination is unreachable.
type Sender interface {
	Send(name string, env protocol.Envelope) bool
}

type pending struct {
	windowID string
	env      protocol.Envelope
	// replyTo is the channel the original envelope arrived on; the
	// terminal response goes back through it.
	replyTo string
}

// Manager owns the pending-approval map and converts popup responses or
// forced window closure into protocol responses. At most one approval is
// open per origin; a new request supersedes (rejects) the old one.
type Manager struct {
	actions map[protocol.Action]bool
	opener  WindowOpener
	sender  Sender
	route   string
	logger  *slog.Logger

	// OnApproved, if set, runs after a successful approval before the
	// response is sent. Used to persist origin authorization when a
	// request-accounts approval lands.
	OnApproved func(ctx context.Context, env protocol.Envelope)

	mu      sync.Mutex
	pendMap map[string]pending // windowID -> pending
}

// New creates an approval manager. An empty actions slice selects
// DefaultActions.
func New(actions []protocol.Action, opener WindowOpener, sender Sender, route string, logger *slog.Logger) *Manager {
	if len(actions) == 0 {
		actions = DefaultActions
	}
	set := make(map[protocol.Action]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return &Manager{
		actions: set,
		opener:  opener,
		sender:  sender,
		route:   route,
		logger:  logger.With("component", "approval"),
		pendMap: make(map[string]pending),
	}
}

// RequiresApproval reports whether an action is gated on interactive
// approval.
func (m *Manager) RequiresApproval(action protocol.Action) bool {
	return m.actions[action]
}

// RequestApproval evicts any pending approval for the same origin, opens a
// fresh popup, and records the envelope under the new window's identifier.
// A popup-creation failure is returned to the caller so the router can
// answer the original sender with an error.
func (m *Manager) RequestApproval(ctx context.Context, replyTo string, env protocol.Envelope) error {
	m.evictByOrigin(env.Metadata.Origin)

	windowID, err := m.opener.Open(ctx, m.route)
	if err != nil {
		return fmt.Errorf("create approval window: %w", err)
	}

	env.Metadata.WindowID = windowID

	m.mu.Lock()
	m.pendMap[windowID] = pending{windowID: windowID, env: env, replyTo: replyTo}
	m.mu.Unlock()

	m.logger.Info("approval window created",
		"window_id", windowID, "action", env.Action, "origin", env.Metadata.Origin)
	return nil
}

// ApprovalData returns the original envelope recorded for a window so the
// popup can render what it is approving. Unknown windows return false.
func (m *Manager) ApprovalData(windowID string) (protocol.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pendMap[windowID]
	return p.env, ok
}

// HandleResponse resolves a pending approval with the user's decision.
// A missing entry is logged and ignored: the window may already have been
// cleaned up by a racing window-close event.
func (m *Manager) HandleResponse(ctx context.Context, windowID string, approved bool, data []byte) {
	p, ok := m.take(windowID)
	if !ok {
		m.logger.Warn("no pending approval for window", "window_id", windowID)
		return
	}

	if approved {
		if m.OnApproved != nil {
			m.OnApproved(ctx, p.env)
		}
		m.respond(p, p.env.Response(data))
	} else {
		m.respond(p, p.env.ErrorResponse(protocol.ErrUserReject))
	}

	// The popup may already be gone; Close is idempotent.
	if err := m.opener.Close(windowID); err != nil {
		m.logger.Debug("close approval window", "window_id", windowID, "error", err)
	}
}

// HandleWindowClosed synthesizes a rejection when a popup is closed via
// the window chrome instead of a button. Idempotent against windows with
// no pending entry.
func (m *Manager) HandleWindowClosed(windowID string) {
	p, ok := m.take(windowID)
	if !ok {
		return
	}
	m.logger.Info("rejecting approval via window close", "window_id", windowID, "action", p.env.Action)
	m.respond(p, p.env.ErrorResponse(protocol.ErrUserReject))
}

// PendingCount returns the number of open approvals.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendMap)
}

// RejectChannel rejects every pending approval whose response would travel
// through the named channel. Wired to registry disconnects: a dead relay
// can never deliver the response anyway.
func (m *Manager) RejectChannel(name string) {
	m.mu.Lock()
	var victims []pending
	for id, p := range m.pendMap {
		if p.replyTo == name {
			victims = append(victims, p)
			delete(m.pendMap, id)
		}
	}
	m.mu.Unlock()

	for _, p := range victims {
		_ = m.opener.Close(p.windowID)
		m.respond(p, p.env.ErrorResponse(protocol.ErrUserReject))
	}
}

// CloseAll rejects everything pending. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	victims := make([]pending, 0, len(m.pendMap))
	for id, p := range m.pendMap {
		victims = append(victims, p)
		delete(m.pendMap, id)
	}
	m.mu.Unlock()

	for _, p := range victims {
		_ = m.opener.Close(p.windowID)
		m.respond(p, p.env.ErrorResponse(protocol.ErrUserReject))
	}
}

func (m *Manager) take(windowID string) (pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pendMap[windowID]
	if ok {
		delete(m.pendMap, windowID)
	}
	return p, ok
}

func (m *Manager) respond(p pending, env protocol.Envelope) {
	if !m.sender.Send(p.replyTo, env) {
		m.logger.Warn("approval response undeliverable",
			"window_id", p.windowID, "reply_to", p.replyTo, "message_id", env.Metadata.MessageID)
	}
}

func (m *Manager) evictByOrigin(origin string) {
	if origin == "" {
		return
	}

	m.mu.Lock()
	var victims []pending
	for id, p := range m.pendMap {
		if p.env.Metadata.Origin == origin {
			victims = append(victims, p)
			delete(m.pendMap, id)
		}
	}
	m.mu.Unlock()

	for _, p := range victims {
		m.logger.Info("superseding approval window", "window_id", p.windowID, "origin", origin)
		if err := m.opener.Close(p.windowID); err != nil {
			m.logger.Debug("close superseded window", "window_id", p.windowID, "error", err)
		}
		m.respond(p, p.env.ErrorResponse(protocol.ErrUserReject))
	}
}
