package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sat20-labs/walletd/internal/config"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateReinitializing
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateReinitializing:
		return "reinitializing"
	default:
		return "uninitialized"
	}
}

// Queued is an envelope held back until the engine is ready, together
// with the channel it arrived on.
type Queued struct {
	Channel string
	Env     protocol.Envelope
}

// Replay processes a queued envelope once the engine becomes ready.
type Replay func(channel string, env protocol.Envelope)

// Manager owns the engine lifecycle. While the engine is not ready,
// inbound envelopes are queued FIFO and replayed in arrival order on the
// readiness transition; no envelope that arrived later is processed
// before one that arrived earlier.
type Manager struct {
	loader Loader
	replay Replay
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	draining bool // ready, but still flushing the queued backlog
	engine   Engine
	inflight chan struct{} // closed when the current load finishes
	loadErr  error
	queue    []Queued
}

// NewManager creates an engine lifecycle manager. replay is invoked for
// each queued envelope when readiness is reached.
func NewManager(loader Loader, replay Replay, logger *slog.Logger) *Manager {
	return &Manager{
		loader: loader,
		replay: replay,
		logger: logger.With("component", "engine-manager"),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether the engine accepts calls.
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// Initialize loads the engine. It is idempotent under concurrent calls:
// a caller arriving while a load is in flight awaits the same operation
// instead of starting a second one.
func (m *Manager) Initialize(ctx context.Context, cfg config.EngineConfig) error {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		m.mu.Unlock()
		return nil
	case StateLoading, StateReinitializing:
		inflight := m.inflight
		m.mu.Unlock()
		select {
		case <-inflight:
			m.mu.Lock()
			err := m.loadErr
			m.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.state = StateLoading
	m.inflight = make(chan struct{})
	m.mu.Unlock()

	return m.load(ctx, cfg)
}

// Reinitialize releases the current engine and loads a fresh one under
// the new configuration. Envelopes arriving meanwhile are queued exactly
// as during first load.
func (m *Manager) Reinitialize(ctx context.Context, cfg config.EngineConfig) error {
	m.mu.Lock()
	if m.state != StateReady || m.draining {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot reinitialize from state %s", state)
	}
	old := m.engine
	m.engine = nil
	m.state = StateReinitializing
	m.inflight = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("reinitializing engine", "network", cfg.Network)
	if old != nil {
		if err := old.Release(); err != nil {
			m.logger.Warn("release engine failed", "error", err)
		}
	}

	return m.load(ctx, cfg)
}

func (m *Manager) load(ctx context.Context, cfg config.EngineConfig) error {
	eng, err := m.loader(ctx, cfg)

	m.mu.Lock()
	m.loadErr = err
	if err != nil {
		m.state = StateUninitialized
		close(m.inflight)
		m.mu.Unlock()
		m.logger.Error("engine load failed", "error", err)
		return err
	}
	m.engine = eng
	close(m.inflight)
	m.mu.Unlock()

	m.drainAndMarkReady()
	return nil
}

// drainAndMarkReady flips to ready, then replays the queue in FIFO
// order. The state flips first so replayed envelopes can reach the
// engine; the draining flag keeps Gate queueing fresh arrivals until the
// backlog is flushed, preserving arrival order across the transition.
// Replay callbacks must re-enter through a path that skips Gate.
func (m *Manager) drainAndMarkReady() {
	m.mu.Lock()
	m.state = StateReady
	m.draining = true
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			m.logger.Info("engine ready, queue drained")
			return
		}
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()

		m.logger.Info("replaying queued envelopes", "count", len(batch))
		for _, q := range batch {
			m.replay(q.Channel, q.Env)
		}
	}
}

// Gate atomically checks readiness and, if the engine is not ready,
// queues the envelope. Returns true when the envelope was queued and the
// caller must stop processing it.
func (m *Manager) Gate(channelName string, env protocol.Envelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReady && !m.draining {
		return false
	}
	m.queue = append(m.queue, Queued{Channel: channelName, Env: env})
	return true
}

// QueueLen returns the number of envelopes waiting on readiness.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Call forwards a call to the loaded engine.
func (m *Manager) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	eng := m.engine
	state := m.state
	m.mu.Unlock()

	if state != StateReady || eng == nil {
		return nil, fmt.Errorf("engine not ready (state %s)", state)
	}
	return eng.Call(ctx, method, args...)
}

// Close releases the engine if loaded.
func (m *Manager) Close() error {
	m.mu.Lock()
	eng := m.engine
	m.engine = nil
	m.state = StateUninitialized
	m.mu.Unlock()

	if eng != nil {
		return eng.Release()
	}
	return nil
}
