// Package authz implements the origin-authorization gate: a cached,
// non-interactive permission check against the authorized-origin store.
package authz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sat20-labs/walletd/internal/store"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// DefaultActions is the reference set of actions requiring a
// pre-authorized origin.
var DefaultActions = []protocol.Action{
	protocol.ActionGetAccounts,
	protocol.ActionGetPublicKey,
	protocol.ActionGetBalance,
	protocol.ActionGetNetwork,
	protocol.ActionSwitchNetwork,
	protocol.ActionSendBitcoin,
	protocol.ActionSignMessage,
	protocol.ActionSignPsbt,
	protocol.ActionSignPsbts,
	protocol.ActionPushTx,
	protocol.ActionPushPsbt,
	protocol.ActionGetUtxos,
	protocol.ActionGetAssetAmount,
	protocol.ActionGetInscriptions,
	protocol.ActionSendInscription,
	protocol.ActionSplitAsset,
	protocol.ActionLockUtxo,
	protocol.ActionUnlockUtxo,
	protocol.ActionGetAllLockedUtxo,
}

type cacheEntry struct {
	authorized bool
	checkedAt  time.Time
}

// Manager checks and caches per-origin authorization decisions. Negative
// results are cached too, so a known-unauthorized origin is not re-checked
// within the TTL window.
type Manager struct {
	store   store.Store
	ttl     time.Duration
	actions map[protocol.Action]bool
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// New creates an authorization manager. An empty actions slice selects
// DefaultActions.
func New(s store.Store, actions []protocol.Action, ttl time.Duration, logger *slog.Logger) *Manager {
	if len(actions) == 0 {
		actions = DefaultActions
	}
	set := make(map[protocol.Action]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return &Manager{
		store:   s,
		ttl:     ttl,
		actions: set,
		logger:  logger.With("component", "authz"),
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// RequiresAuthorization reports whether an action is gated on origin
// authorization.
func (m *Manager) RequiresAuthorization(action protocol.Action) bool {
	return m.actions[action]
}

// IsAuthorized reports whether an origin is authorized. Cache hits younger
// than the TTL are returned without re-checking; a miss or stale entry
// triggers a fresh store lookup and refreshes the entry regardless of
// outcome.
func (m *Manager) IsAuthorized(ctx context.Context, origin string) (bool, error) {
	m.mu.Lock()
	entry, ok := m.cache[origin]
	now := m.now()
	m.mu.Unlock()

	if ok && now.Sub(entry.checkedAt) < m.ttl {
		return entry.authorized, nil
	}

	authorized, err := m.store.HasOrigin(ctx, origin)
	if err != nil {
		m.logger.Warn("origin check failed", "origin", origin, "error", err)
		return false, err
	}

	m.mu.Lock()
	m.cache[origin] = cacheEntry{authorized: authorized, checkedAt: now}
	m.mu.Unlock()
	return authorized, nil
}

// Authorize persists an origin into the authorized set and primes the
// cache. Called after a successful request-accounts approval.
func (m *Manager) Authorize(ctx context.Context, origin string) error {
	if err := m.store.AddOrigin(ctx, origin); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[origin] = cacheEntry{authorized: true, checkedAt: m.now()}
	m.mu.Unlock()
	m.logger.Info("origin authorized", "origin", origin)
	return nil
}

// Invalidate drops the cache entry for an origin, or the whole cache when
// origin is empty. Used when the user revokes authorization.
func (m *Manager) Invalidate(origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if origin == "" {
		m.cache = make(map[string]cacheEntry)
		return
	}
	delete(m.cache, origin)
}

// Sweep removes expired cache entries.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for origin, entry := range m.cache {
		if now.Sub(entry.checkedAt) >= m.ttl {
			delete(m.cache, origin)
		}
	}
}
