package channel

import (
	"log/slog"
	"sync"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// DisconnectListener is notified when a named channel is removed from the
// registry, whether by eviction, replacement, or transport failure.
type DisconnectListener func(name string)

// Registry tracks active channels by logical name. At most one live
// channel exists per name; registering a replacement disconnects the old
// one first.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	channels  map[string]Channel
	listeners []DisconnectListener
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("component", "channel-registry"),
		channels: make(map[string]Channel),
	}
}

// Register adds a channel under a logical name, replacing and closing any
// prior channel registered under the same name.
func (r *Registry) Register(name string, ch Channel) {
	r.mu.Lock()
	prev := r.channels[name]
	r.channels[name] = ch
	r.mu.Unlock()

	if prev != nil {
		r.logger.Info("replacing channel", "name", name)
		_ = prev.Close()
	}
	r.logger.Debug("channel registered", "name", name)
}

// Send writes an envelope to the named channel. It returns false if the
// name is unknown or the channel is closed; callers treat that as
// "destination unreachable", not a fatal error.
func (r *Registry) Send(name string, env protocol.Envelope) bool {
	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("send to unknown channel", "name", name, "action", env.Action)
		return false
	}
	if err := ch.Send(env); err != nil {
		r.logger.Warn("send failed", "name", name, "error", err)
		r.DisconnectChannel(ch)
		return false
	}
	return true
}

// Broadcast writes an envelope to every registered channel and returns the
// number of successful deliveries.
func (r *Registry) Broadcast(env protocol.Envelope) int {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	sent := 0
	for _, ch := range targets {
		if err := ch.Send(env); err == nil {
			sent++
		}
	}
	return sent
}

// BroadcastExcept writes an envelope to every registered channel except
// the named one and returns the number of successful deliveries.
func (r *Registry) BroadcastExcept(skip string, env protocol.Envelope) int {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.channels))
	for name, ch := range r.channels {
		if name == skip {
			continue
		}
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	sent := 0
	for _, ch := range targets {
		if err := ch.Send(env); err == nil {
			sent++
		}
	}
	return sent
}

// Disconnect removes and closes the named channel, notifying listeners.
// Unknown names are a no-op.
func (r *Registry) Disconnect(name string) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	if ok {
		delete(r.channels, name)
	}
	listeners := make([]DisconnectListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = ch.Close()
	r.logger.Info("channel disconnected", "name", name)
	for _, l := range listeners {
		l(name)
	}
}

// DisconnectChannel closes the channel and removes it only if it is
// still the one registered under its name. A channel that was already
// replaced must not evict its replacement or notify listeners; reconnect
// teardown of the old connection races with registration of the new one.
func (r *Registry) DisconnectChannel(ch Channel) {
	name := ch.Name()
	r.mu.Lock()
	current := r.channels[name] == ch
	if current {
		delete(r.channels, name)
	}
	listeners := make([]DisconnectListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	_ = ch.Close()
	if !current {
		return
	}
	r.logger.Info("channel disconnected", "name", name)
	for _, l := range listeners {
		l(name)
	}
}

// OnDisconnect adds a listener invoked whenever a channel is removed.
func (r *Registry) OnDisconnect(l DisconnectListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Connected reports whether a live channel exists under the given name.
func (r *Registry) Connected(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[name]
	return ok
}

// Close disconnects every registered channel.
func (r *Registry) Close() {
	r.mu.RLock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.RUnlock()

	for _, name := range names {
		r.Disconnect(name)
	}
}
