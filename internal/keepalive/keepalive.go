// Package keepalive maintains a heartbeat toward a peer channel and
// drives reconnection with exponential backoff when it drops.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sat20-labs/walletd/internal/config"
)

// State describes the monitor's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Pinger performs one heartbeat probe against the peer. An error means
// the peer is unreachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Waker issues a best-effort wake signal once reconnection is abandoned.
type Waker interface {
	Wake(ctx context.Context) error
}

// Monitor runs the keep-alive loop: while connected it pings on a fixed
// interval; on failure it retries with exponential backoff up to a
// bounded number of attempts, then fires a wake. A wake that reaches the
// peer resets the backoff and the loop resumes; a failed wake leaves the
// monitor down until Connect is called again.
type Monitor struct {
	pinger Pinger
	waker  Waker
	cfg    config.KeepAliveConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	attempts int
	stop     chan struct{}
	done     chan struct{}
}

// New creates a stopped monitor. Config fields must already have
// defaults applied.
func New(pinger Pinger, waker Waker, cfg config.KeepAliveConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		pinger: pinger,
		waker:  waker,
		cfg:    cfg,
		logger: logger.With("component", "keepalive"),
	}
}

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnect attempts made since the last
// successful ping.
func (m *Monitor) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect starts the keep-alive loop. Calling it while the loop is
// already running is a no-op.
func (m *Monitor) Connect() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.state = StateConnecting
	m.attempts = 0
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.run(stop, done)
}

// Disconnect stops the loop and resets backoff state. It is idempotent
// and suppresses any further retries until Connect is called again.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	m.mu.Lock()
	m.state = StateDisconnected
	m.attempts = 0
	m.mu.Unlock()
}

func (m *Monitor) run(stop, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	delay := m.cfg.InitialDelay.Duration

	for {
		if err := m.pinger.Ping(ctx); err == nil {
			m.setState(StateConnected)
			m.resetBackoff(&delay)
			if !m.heartbeat(ctx, stop) {
				return
			}
			// Heartbeat failed: fall through to reconnect.
			m.setState(StateConnecting)
			continue
		}

		m.mu.Lock()
		m.state = StateConnecting
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()

		if attempts >= m.cfg.MaxAttempts {
			m.logger.Warn("reconnect attempts exhausted, waking peer",
				"attempts", attempts)
			if err := m.waker.Wake(ctx); err != nil {
				m.logger.Warn("wake failed, giving up", "error", err)
				m.mu.Lock()
				m.state = StateDisconnected
				m.stop, m.done = nil, nil
				m.mu.Unlock()
				return
			}
			// The wake reached the peer: start a fresh backoff cycle.
			m.mu.Lock()
			m.attempts = 0
			m.mu.Unlock()
			delay = m.cfg.InitialDelay.Duration
			select {
			case <-stop:
				return
			case <-time.After(delay):
			}
			continue
		}

		m.logger.Info("reconnecting",
			"attempt", attempts, "delay", delay)
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}
		delay = nextDelay(delay, m.cfg.MaxDelay.Duration)
	}
}

// heartbeat pings on the configured interval until a ping fails (returns
// true) or the monitor is stopped (returns false).
func (m *Monitor) heartbeat(ctx context.Context, stop chan struct{}) bool {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return false
		case <-ticker.C:
			if err := m.pinger.Ping(ctx); err != nil {
				m.logger.Warn("heartbeat failed", "error", err)
				return true
			}
		}
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) resetBackoff(delay *time.Duration) {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
	*delay = m.cfg.InitialDelay.Duration
}

// nextDelay doubles the backoff delay up to the cap.
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
