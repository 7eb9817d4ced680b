package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Handler executes the business logic for one or more actions. Handlers
// validate their own parameters and call the backing engine.
type Handler interface {
	// Actions returns the actions this handler serves.
	Actions() []protocol.Action
	// Handle executes the action and returns the response payload.
	Handle(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error)
}

// Registry maps actions to their handlers. It is the single dispatch
// table for REQUEST-type envelopes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[protocol.Action]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[protocol.Action]Handler)}
}

// Register adds a handler for every action it serves. Panics on duplicate.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, action := range h.Actions() {
		if _, exists := r.handlers[action]; exists {
			panic(fmt.Sprintf("handler already registered for action: %s", action))
		}
		r.handlers[action] = h
	}
}

// Get returns the handler for an action.
func (r *Registry) Get(action protocol.Action) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[action]
	return h, ok
}

// Actions returns all registered actions.
func (r *Registry) Actions() []protocol.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := make([]protocol.Action, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, a)
	}
	return actions
}
