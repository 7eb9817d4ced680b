package handlers

import (
	"context"
	"encoding/json"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// AccountHandler serves account and network queries.
type AccountHandler struct {
	engine Engine
	// reinit is invoked after a successful network switch so the engine
	// can be reloaded against the new network.
	reinit func(ctx context.Context, network string) error
}

// NewAccountHandler creates the handler for account and network actions.
func NewAccountHandler(engine Engine, reinit func(ctx context.Context, network string) error) *AccountHandler {
	return &AccountHandler{engine: engine, reinit: reinit}
}

func (h *AccountHandler) Actions() []protocol.Action {
	return []protocol.Action{
		protocol.ActionGetAccounts,
		protocol.ActionGetPublicKey,
		protocol.ActionGetBalance,
		protocol.ActionGetNetwork,
		protocol.ActionSwitchNetwork,
	}
}

func (h *AccountHandler) Handle(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	switch action {
	case protocol.ActionGetAccounts:
		return h.engine.Call(ctx, "getAccounts")
	case protocol.ActionGetPublicKey:
		return h.engine.Call(ctx, "getPublicKey")
	case protocol.ActionGetBalance:
		return h.engine.Call(ctx, "getBalance")
	case protocol.ActionGetNetwork:
		return h.engine.Call(ctx, "getNetwork")
	case protocol.ActionSwitchNetwork:
		return h.switchNetwork(ctx, data)
	default:
		return nil, protocol.ErrMethodNotFound
	}
}

func (h *AccountHandler) switchNetwork(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	var params protocol.SwitchNetworkParams
	if err := decode(data, &params); err != nil {
		return nil, err
	}
	if params.Network == "" {
		return nil, protocol.InvalidRequest("network is required")
	}

	result, err := h.engine.Call(ctx, "switchNetwork", params.Network)
	if err != nil {
		return nil, err
	}
	if h.reinit != nil {
		if err := h.reinit(ctx, params.Network); err != nil {
			return nil, protocol.Internal(err)
		}
	}
	return result, nil
}
