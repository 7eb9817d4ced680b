package handlers

import (
	"context"
	"encoding/json"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Approvals is the subset of the approval manager the popup handler uses.
type Approvals interface {
	ApprovalData(windowID string) (protocol.Envelope, bool)
	HandleResponse(ctx context.Context, windowID string, approved bool, data []byte)
}

// PopupHandler serves the popup-internal actions: fetching the envelope
// behind an approval window and posting the user's decision.
type PopupHandler struct {
	approvals Approvals
}

// NewPopupHandler creates the handler for popup-internal actions.
func NewPopupHandler(approvals Approvals) *PopupHandler {
	return &PopupHandler{approvals: approvals}
}

func (h *PopupHandler) Actions() []protocol.Action {
	return []protocol.Action{
		protocol.ActionGetApprovalData,
		protocol.ActionApprovalResponse,
	}
}

func (h *PopupHandler) Handle(ctx context.Context, action protocol.Action, data json.RawMessage) (json.RawMessage, error) {
	switch action {
	case protocol.ActionGetApprovalData:
		var params struct {
			WindowID string `json:"windowId"`
		}
		if err := decode(data, &params); err != nil {
			return nil, err
		}
		if params.WindowID == "" {
			return nil, protocol.InvalidRequest("windowId is required")
		}
		env, ok := h.approvals.ApprovalData(params.WindowID)
		if !ok {
			return nil, protocol.InvalidRequest("no pending approval for window: " + params.WindowID)
		}
		return json.Marshal(env)

	case protocol.ActionApprovalResponse:
		var result protocol.ApprovalResult
		if err := decode(data, &result); err != nil {
			return nil, err
		}
		if result.WindowID == "" {
			return nil, protocol.InvalidRequest("windowId is required")
		}
		h.approvals.HandleResponse(ctx, result.WindowID, result.Approved, result.Data)
		return json.Marshal(map[string]bool{"ok": true})

	default:
		return nil, protocol.ErrMethodNotFound
	}
}
