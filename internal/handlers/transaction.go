package handlers

import (
	"context"
	"encoding/json"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// TransactionHandler serves actions that build or broadcast transactions.
type TransactionHandler struct {
	engine Engine
}

// NewTransactionHandler creates the handler for transaction actions.
func NewTransactionHandler(engine Engine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

func (h *TransactionHandler) Actions() []protocol.Action {
	return []protocol.Action{
		protocol.ActionSendBitcoin,
		protocol.ActionPushTx,
		protocol.ActionPushPsbt,
		protocol.ActionSendInscription,
		protocol.ActionSplitAsset,
	}
}

func (h *TransactionHandler) Handle(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	switch action {
	case protocol.ActionSendBitcoin:
		var params protocol.SendBitcoinParams
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Address == "" {
			return nil, protocol.InvalidRequest("address is required")
		}
		if params.Amount <= 0 {
			return nil, protocol.InvalidRequest("amount must be positive")
		}
		return h.engine.Call(ctx, "sendBitcoin", params.Address, params.Amount, params.FeeRate)

	case protocol.ActionPushTx:
		var params struct {
			RawTx string `json:"rawtx"`
		}
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.RawTx == "" {
			return nil, protocol.InvalidRequest("rawtx is required")
		}
		return h.engine.Call(ctx, "pushTx", params.RawTx)

	case protocol.ActionPushPsbt:
		var params protocol.SignPsbtParams
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Psbt == "" {
			return nil, protocol.InvalidRequest("psbt is required")
		}
		return h.engine.Call(ctx, "pushPsbt", params.Psbt)

	case protocol.ActionSendInscription:
		var params struct {
			Address       string `json:"address"`
			InscriptionID string `json:"inscriptionId"`
			FeeRate       int64  `json:"feeRate,omitempty"`
		}
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Address == "" || params.InscriptionID == "" {
			return nil, protocol.InvalidRequest("address and inscriptionId are required")
		}
		return h.engine.Call(ctx, "sendInscription", params.Address, params.InscriptionID, params.FeeRate)

	case protocol.ActionSplitAsset:
		var params struct {
			Asset  string `json:"asset"`
			Amount int64  `json:"amount"`
			Count  int    `json:"count"`
		}
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Asset == "" {
			return nil, protocol.InvalidRequest("asset is required")
		}
		return h.engine.Call(ctx, "splitAsset", params.Asset, params.Amount, params.Count)

	default:
		return nil, protocol.ErrMethodNotFound
	}
}
