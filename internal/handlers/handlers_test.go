package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

type call struct {
	method string
	args   []any
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (e *fakeEngine) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call{method: method, args: args})
	if e.err != nil {
		return nil, e.err
	}
	return json.RawMessage(`"done"`), nil
}

func (e *fakeEngine) last(t *testing.T) call {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		t.Fatal("engine never called")
	}
	return e.calls[len(e.calls)-1]
}

func wantInvalidRequest(t *testing.T, err error) {
	t.Helper()
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.CodeInvalidRequest {
		t.Fatalf("err = %v, want invalid-request", err)
	}
}

func TestAccountHandlerMethodMapping(t *testing.T) {
	eng := &fakeEngine{}
	h := NewAccountHandler(eng, nil)
	ctx := context.Background()

	cases := []struct {
		action protocol.Action
		method string
	}{
		{protocol.ActionGetAccounts, "getAccounts"},
		{protocol.ActionGetPublicKey, "getPublicKey"},
		{protocol.ActionGetBalance, "getBalance"},
		{protocol.ActionGetNetwork, "getNetwork"},
	}
	for _, tc := range cases {
		if _, err := h.Handle(ctx, tc.action, nil); err != nil {
			t.Fatalf("%s: %v", tc.action, err)
		}
		if got := eng.last(t).method; got != tc.method {
			t.Fatalf("%s -> %s, want %s", tc.action, got, tc.method)
		}
	}
}

func TestSwitchNetworkTriggersReinit(t *testing.T) {
	eng := &fakeEngine{}
	var reinitNetwork string
	h := NewAccountHandler(eng, func(ctx context.Context, network string) error {
		reinitNetwork = network
		return nil
	})

	_, err := h.Handle(context.Background(), protocol.ActionSwitchNetwork,
		json.RawMessage(`{"network":"livenet"}`))
	if err != nil {
		t.Fatalf("switch-network: %v", err)
	}
	if eng.last(t).method != "switchNetwork" {
		t.Fatalf("method = %s", eng.last(t).method)
	}
	if reinitNetwork != "livenet" {
		t.Fatalf("reinit network = %q", reinitNetwork)
	}
}

func TestSwitchNetworkValidation(t *testing.T) {
	h := NewAccountHandler(&fakeEngine{}, nil)
	_, err := h.Handle(context.Background(), protocol.ActionSwitchNetwork, json.RawMessage(`{}`))
	wantInvalidRequest(t, err)
	_, err = h.Handle(context.Background(), protocol.ActionSwitchNetwork, nil)
	wantInvalidRequest(t, err)
}

func TestSendBitcoinValidation(t *testing.T) {
	eng := &fakeEngine{}
	h := NewTransactionHandler(eng)
	ctx := context.Background()

	_, err := h.Handle(ctx, protocol.ActionSendBitcoin, json.RawMessage(`{"amount":100}`))
	wantInvalidRequest(t, err)

	_, err = h.Handle(ctx, protocol.ActionSendBitcoin, json.RawMessage(`{"address":"bc1q","amount":0}`))
	wantInvalidRequest(t, err)

	_, err = h.Handle(ctx, protocol.ActionSendBitcoin,
		json.RawMessage(`{"address":"bc1q","amount":1500,"feeRate":2}`))
	if err != nil {
		t.Fatalf("valid send-bitcoin: %v", err)
	}
	if eng.last(t).method != "sendBitcoin" {
		t.Fatalf("method = %s", eng.last(t).method)
	}
}

func TestSigningHandler(t *testing.T) {
	eng := &fakeEngine{}
	h := NewSigningHandler(eng)
	ctx := context.Background()

	_, err := h.Handle(ctx, protocol.ActionSignMessage, json.RawMessage(`{"message":""}`))
	wantInvalidRequest(t, err)

	if _, err := h.Handle(ctx, protocol.ActionSignMessage, json.RawMessage(`{"message":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	if eng.last(t).method != "signMessage" {
		t.Fatalf("method = %s", eng.last(t).method)
	}

	_, err = h.Handle(ctx, protocol.ActionSignPsbts, json.RawMessage(`{"psbts":[]}`))
	wantInvalidRequest(t, err)

	if _, err := h.Handle(ctx, protocol.ActionSignPsbts, json.RawMessage(`{"psbts":["cHNidP8"]}`)); err != nil {
		t.Fatal(err)
	}
	if eng.last(t).method != "signPsbts" {
		t.Fatalf("method = %s", eng.last(t).method)
	}
}

func TestUtxoLockUnlock(t *testing.T) {
	eng := &fakeEngine{}
	h := NewUtxoHandler(eng)
	ctx := context.Background()

	if _, err := h.Handle(ctx, protocol.ActionLockUtxo, json.RawMessage(`{"utxo":"txid:0"}`)); err != nil {
		t.Fatal(err)
	}
	if eng.last(t).method != "lockUtxo" {
		t.Fatalf("method = %s", eng.last(t).method)
	}

	if _, err := h.Handle(ctx, protocol.ActionUnlockUtxo, json.RawMessage(`{"utxo":"txid:0"}`)); err != nil {
		t.Fatal(err)
	}
	if eng.last(t).method != "unlockUtxo" {
		t.Fatalf("method = %s", eng.last(t).method)
	}

	_, err := h.Handle(ctx, protocol.ActionLockUtxo, json.RawMessage(`{}`))
	wantInvalidRequest(t, err)
}

func TestEngineErrorPassesThrough(t *testing.T) {
	eng := &fakeEngine{err: protocol.EngineError("broke")}
	h := NewUtxoHandler(eng)

	_, err := h.Handle(context.Background(), protocol.ActionGetUtxos, nil)
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.CodeEngine {
		t.Fatalf("err = %v, want engine error", err)
	}
}

// approvalStub implements Approvals.
type approvalStub struct {
	env       protocol.Envelope
	has       bool
	responses []protocol.ApprovalResult
}

func (s *approvalStub) ApprovalData(windowID string) (protocol.Envelope, bool) {
	return s.env, s.has
}

func (s *approvalStub) HandleResponse(ctx context.Context, windowID string, approved bool, data []byte) {
	s.responses = append(s.responses, protocol.ApprovalResult{
		WindowID: windowID, Approved: approved, Data: data,
	})
}

func TestPopupHandler(t *testing.T) {
	stub := &approvalStub{
		env: protocol.Envelope{Action: protocol.ActionSendBitcoin},
		has: true,
	}
	h := NewPopupHandler(stub)
	ctx := context.Background()

	data, err := h.Handle(ctx, protocol.ActionGetApprovalData, json.RawMessage(`{"windowId":"win-1"}`))
	if err != nil {
		t.Fatalf("get-approval-data: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Action != protocol.ActionSendBitcoin {
		t.Fatalf("payload = %s (%v)", data, err)
	}

	stub.has = false
	_, err = h.Handle(ctx, protocol.ActionGetApprovalData, json.RawMessage(`{"windowId":"win-ghost"}`))
	wantInvalidRequest(t, err)

	_, err = h.Handle(ctx, protocol.ActionApprovalResponse,
		json.RawMessage(`{"windowId":"win-1","approved":true,"data":["bc1q"]}`))
	if err != nil {
		t.Fatalf("approval-response: %v", err)
	}
	if len(stub.responses) != 1 || !stub.responses[0].Approved || stub.responses[0].WindowID != "win-1" {
		t.Fatalf("responses = %+v", stub.responses)
	}

	_, err = h.Handle(ctx, protocol.ActionApprovalResponse, json.RawMessage(`{"approved":true}`))
	wantInvalidRequest(t, err)
}
