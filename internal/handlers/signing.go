package handlers

import (
	"context"
	"encoding/json"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// SigningHandler serves message and PSBT signing actions.
type SigningHandler struct {
	engine Engine
}

// NewSigningHandler creates the handler for signing actions.
func NewSigningHandler(engine Engine) *SigningHandler {
	return &SigningHandler{engine: engine}
}

func (h *SigningHandler) Actions() []protocol.Action {
	return []protocol.Action{
		protocol.ActionSignMessage,
		protocol.ActionSignPsbt,
		protocol.ActionSignPsbts,
	}
}

func (h *SigningHandler) Handle(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	switch action {
	case protocol.ActionSignMessage:
		var params protocol.SignMessageParams
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Message == "" {
			return nil, protocol.InvalidRequest("message is required")
		}
		return h.engine.Call(ctx, "signMessage", params.Message)

	case protocol.ActionSignPsbt:
		var params protocol.SignPsbtParams
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.Psbt == "" {
			return nil, protocol.InvalidRequest("psbt is required")
		}
		return h.engine.Call(ctx, "signPsbt", params.Psbt)

	case protocol.ActionSignPsbts:
		var params protocol.SignPsbtsParams
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if len(params.Psbts) == 0 {
			return nil, protocol.InvalidRequest("psbts must not be empty")
		}
		return h.engine.Call(ctx, "signPsbts", params.Psbts)

	default:
		return nil, protocol.ErrMethodNotFound
	}
}
