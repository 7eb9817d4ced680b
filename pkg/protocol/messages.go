// Package protocol defines the wire protocol envelopes exchanged between
// walletd contexts (injected page ↔ content relay ↔ background ↔ popup,
// plus the embedded webview bridge).
//
// All messages are JSON-encoded and share a common envelope with a "type"
// field that determines how the router dispatches them and an "action"
// field that identifies the wallet operation.
package protocol

import "encoding/json"

// MessageType classifies an envelope.
type MessageType string

const (
	// TypeRequest is a fire-and-await operation with no user interaction.
	TypeRequest MessageType = "REQUEST"
	// TypeApprove is an operation that requires interactive user confirmation.
	TypeApprove MessageType = "APPROVE"
	// TypeEvent is a fire-and-forget notification; no response is produced.
	TypeEvent MessageType = "EVENT"
)

// Action identifies a wallet operation. The set is closed and versioned:
// adding a capability means adding one constant here plus one handler,
// never editing the router.
type Action string

const (
	// Account / network
	ActionRequestAccounts Action = "request-accounts"
	ActionGetAccounts     Action = "get-accounts"
	ActionGetPublicKey    Action = "get-public-key"
	ActionGetBalance      Action = "get-balance"
	ActionGetNetwork      Action = "get-network"
	ActionSwitchNetwork   Action = "switch-network"

	// Transactions
	ActionSendBitcoin     Action = "send-bitcoin"
	ActionPushTx          Action = "push-tx"
	ActionPushPsbt        Action = "push-psbt"
	ActionSendInscription Action = "send-inscription"
	ActionSplitAsset      Action = "split-asset"

	// Signing
	ActionSignMessage Action = "sign-message"
	ActionSignPsbt    Action = "sign-psbt"
	ActionSignPsbts   Action = "sign-psbts"

	// UTXO queries and locks
	ActionGetUtxos         Action = "get-utxos"
	ActionGetAssetAmount   Action = "get-asset-amount"
	ActionGetInscriptions  Action = "get-inscriptions"
	ActionLockUtxo         Action = "lock-utxo"
	ActionUnlockUtxo       Action = "unlock-utxo"
	ActionGetAllLockedUtxo Action = "get-all-locked-utxo"

	// Popup internal
	ActionGetApprovalData  Action = "get-approval-data"
	ActionApprovalResponse Action = "approval-response"

	// Events
	ActionAccountsChanged Action = "accounts-changed"
	ActionNetworkChanged  Action = "network-changed"

	// Keep-alive heartbeat and wake payloads flow as events.
	ActionPing Action = "ping"
	ActionWake Action = "wake"

	// Window lifecycle events sent to the popup shell.
	ActionOpenWindow  Action = "open-window"
	ActionCloseWindow Action = "close-window"
)

// Context identifies an isolated execution context. Contexts cannot call
// each other directly; envelopes are relayed through the background.
type Context string

const (
	ContextInjected   Context = "injected"
	ContextContent    Context = "content"
	ContextBackground Context = "background"
	ContextPopup      Context = "popup"
	ContextWebview    Context = "webview"
)

// Well-known channel names in the connection registry.
const (
	ChannelContent   = "content"
	ChannelPopup     = "popup"
	ChannelWebview   = "webview"
	ChannelKeepAlive = "keep-alive"
)

// Metadata carries routing and correlation information for an envelope.
type Metadata struct {
	MessageID string  `json:"messageId"`
	From      Context `json:"from"`
	To        Context `json:"to"`
	// Origin is the requesting page's origin; absent for same-context events.
	Origin string `json:"origin,omitempty"`
	// WindowID is set once an approval popup has been created for this envelope.
	WindowID string `json:"windowId,omitempty"`
}

// Envelope is the unit of transport between contexts.
type Envelope struct {
	Type     MessageType     `json:"type"`
	Action   Action          `json:"action"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata Metadata        `json:"metadata"`
	Error    *Error          `json:"error,omitempty"`
}

// Response builds the terminal response envelope for a request, preserving
// the message ID and routing it back toward the original sender.
func (e Envelope) Response(data json.RawMessage) Envelope {
	resp := e
	resp.Metadata.From = ContextBackground
	resp.Metadata.To = ContextInjected
	resp.Data = data
	resp.Error = nil
	return resp
}

// ErrorResponse builds the terminal error response for a request.
func (e Envelope) ErrorResponse(err *Error) Envelope {
	resp := e
	resp.Metadata.From = ContextBackground
	resp.Metadata.To = ContextInjected
	resp.Data = nil
	resp.Error = err
	return resp
}

// ApprovalResult is the payload of an approval-response envelope posted by
// the popup back to the background.
type ApprovalResult struct {
	WindowID string          `json:"windowId"`
	Approved bool            `json:"approved"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// OpenWindowParams is the payload of the open-window event sent to the
// popup shell when an approval is requested.
type OpenWindowParams struct {
	WindowID string `json:"windowId"`
	Route    string `json:"route"`
}

// SwitchNetworkParams is the payload of a switch-network request.
type SwitchNetworkParams struct {
	Network string `json:"network"`
}

// SendBitcoinParams is the payload of a send-bitcoin request.
type SendBitcoinParams struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
	FeeRate int64  `json:"feeRate,omitempty"`
}

// SignMessageParams is the payload of a sign-message request.
type SignMessageParams struct {
	Message string `json:"message"`
}

// SignPsbtParams is the payload of sign-psbt.
type SignPsbtParams struct {
	Psbt string `json:"psbt"`
}

// SignPsbtsParams is the payload of sign-psbts.
type SignPsbtsParams struct {
	Psbts []string `json:"psbts"`
}
