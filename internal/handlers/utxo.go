package handlers

import (
	"context"
	"encoding/json"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// UtxoHandler serves UTXO and asset queries, including the lock list used
// to fence UTXOs off from coin selection.
type UtxoHandler struct {
	engine Engine
}

// NewUtxoHandler creates the handler for UTXO and asset actions.
func NewUtxoHandler(engine Engine) *UtxoHandler {
	return &UtxoHandler{engine: engine}
}

func (h *UtxoHandler) Actions() []protocol.Action {
	return []protocol.Action{
		protocol.ActionGetUtxos,
		protocol.ActionGetAssetAmount,
		protocol.ActionGetInscriptions,
		protocol.ActionLockUtxo,
		protocol.ActionUnlockUtxo,
		protocol.ActionGetAllLockedUtxo,
	}
}

func (h *UtxoHandler) Handle(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	switch action {
	case protocol.ActionGetUtxos:
		return h.engine.Call(ctx, "getUtxos")

	case protocol.ActionGetAssetAmount:
		var params struct {
			Asset string `json:"asset"`
		}
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Asset == "" {
			return nil, protocol.InvalidRequest("asset is required")
		}
		return h.engine.Call(ctx, "getAssetAmount", params.Asset)

	case protocol.ActionGetInscriptions:
		return h.engine.Call(ctx, "getInscriptions")

	case protocol.ActionLockUtxo, protocol.ActionUnlockUtxo:
		var params struct {
			Utxo string `json:"utxo"`
		}
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Utxo == "" {
			return nil, protocol.InvalidRequest("utxo is required")
		}
		method := "lockUtxo"
		if action == protocol.ActionUnlockUtxo {
			method = "unlockUtxo"
		}
		return h.engine.Call(ctx, method, params.Utxo)

	case protocol.ActionGetAllLockedUtxo:
		return h.engine.Call(ctx, "getAllLockedUtxo")

	default:
		return nil, protocol.ErrMethodNotFound
	}
}
