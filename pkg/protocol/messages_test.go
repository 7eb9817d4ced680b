package protocol

import (
	"encoding/json"
	"testing"
)

func TestResponsePreservesCorrelation(t *testing.T) {
	req := Envelope{
		Type:   TypeRequest,
		Action: ActionGetBalance,
		Metadata: Metadata{
			MessageID: "m1",
			From:      ContextInjected,
			To:        ContextBackground,
			Origin:    "https://a.example.com",
		},
	}

	resp := req.Response(json.RawMessage(`{"total":1}`))
	if resp.Metadata.MessageID != "m1" {
		t.Fatalf("messageId = %s", resp.Metadata.MessageID)
	}
	if resp.Metadata.From != ContextBackground || resp.Metadata.To != ContextInjected {
		t.Fatalf("routing = %+v", resp.Metadata)
	}
	if resp.Error != nil || string(resp.Data) != `{"total":1}` {
		t.Fatalf("payload = %+v", resp)
	}

	errResp := req.ErrorResponse(ErrNoWallet)
	if errResp.Data != nil || errResp.Error == nil || errResp.Error.Code != CodeNoWallet {
		t.Fatalf("error response = %+v", errResp)
	}
}

func TestErrorPassesThroughAsError(t *testing.T) {
	err := AsError(ErrUserReject)
	if err != ErrUserReject {
		t.Fatalf("AsError rewrapped a protocol error: %+v", err)
	}

	wrapped := AsError(json.Unmarshal([]byte("{"), &struct{}{}))
	if wrapped.Code != CodeInternal {
		t.Fatalf("code = %d, want internal", wrapped.Code)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		Type:   TypeApprove,
		Action: ActionSendBitcoin,
		Data:   json.RawMessage(`{"address":"bc1q","amount":100}`),
		Metadata: Metadata{
			MessageID: "m1",
			From:      ContextInjected,
			To:        ContextBackground,
			Origin:    "https://a.example.com",
			WindowID:  "win-1",
		},
		Error: nil,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var got Envelope
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeApprove || got.Metadata.WindowID != "win-1" {
		t.Fatalf("round trip = %+v", got)
	}
}
