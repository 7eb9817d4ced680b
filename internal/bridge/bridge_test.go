package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

type sink struct {
	mu       sync.Mutex
	messages []callbackMessage
}

func (s *sink) write(data []byte) error {
	var msg callbackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *sink) all() []callbackMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]callbackMessage(nil), s.messages...)
}

func newTestBridge(t *testing.T, timeout time.Duration, handler func(string, protocol.Envelope)) (*Bridge, *sink) {
	t.Helper()
	out := &sink{}
	b := New(handler, timeout, slog.Default())
	b.Attach(out.write)
	t.Cleanup(func() { b.Close() })
	return b, out
}

func TestInboundRequestBecomesEnvelope(t *testing.T) {
	var got protocol.Envelope
	b, _ := newTestBridge(t, time.Minute, func(name string, env protocol.Envelope) {
		if name != protocol.ChannelWebview {
			t.Errorf("channel = %s", name)
		}
		got = env
	})

	raw := []byte(`{"type":"request","callbackId":"cb-1","action":"get-balance","origin":"https://a.example.com"}`)
	if err := b.HandleInbound(raw); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	if got.Type != protocol.TypeRequest || got.Action != protocol.ActionGetBalance {
		t.Fatalf("envelope = %+v", got)
	}
	if got.Metadata.MessageID != "cb-1" || got.Metadata.From != protocol.ContextWebview {
		t.Fatalf("metadata = %+v", got.Metadata)
	}
	if got.Metadata.Origin != "https://a.example.com" {
		t.Fatalf("origin = %s", got.Metadata.Origin)
	}
}

func TestResponseCorrelation(t *testing.T) {
	b, out := newTestBridge(t, time.Minute, func(string, protocol.Envelope) {})

	if err := b.HandleInbound([]byte(`{"type":"request","callbackId":"cb-1","action":"get-balance"}`)); err != nil {
		t.Fatal(err)
	}

	resp := protocol.Envelope{
		Type:   protocol.TypeRequest,
		Action: protocol.ActionGetBalance,
		Data:   json.RawMessage(`{"total":5000}`),
		Metadata: protocol.Metadata{
			MessageID: "cb-1",
			From:      protocol.ContextBackground,
			To:        protocol.ContextWebview,
		},
	}
	if err := b.Send(resp); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := out.all()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Type != "response" || msgs[0].CallbackID != "cb-1" {
		t.Fatalf("message = %+v", msgs[0])
	}
	if string(msgs[0].Data) != `{"total":5000}` {
		t.Fatalf("data = %s", msgs[0].Data)
	}
}

func TestRequestTimeout(t *testing.T) {
	b, out := newTestBridge(t, 5*time.Millisecond, func(string, protocol.Envelope) {})

	if err := b.HandleInbound([]byte(`{"type":"request","callbackId":"cb-1","action":"get-balance"}`)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for len(out.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout response never arrived")
		}
		time.Sleep(time.Millisecond)
	}

	msgs := out.all()
	if msgs[0].Error == nil || msgs[0].Error.Code != protocol.CodeTimeout {
		t.Fatalf("message = %+v, want timeout error", msgs[0])
	}

	// The late response is discarded, not delivered twice.
	_ = b.Send(protocol.Envelope{
		Metadata: protocol.Metadata{MessageID: "cb-1"},
		Data:     json.RawMessage(`"late"`),
	})
	if len(out.all()) != 1 {
		t.Fatalf("messages = %d, want 1 after late response", len(out.all()))
	}
}

func TestEventPassThrough(t *testing.T) {
	b, out := newTestBridge(t, time.Minute, func(string, protocol.Envelope) {})

	err := b.Send(protocol.Envelope{
		Type:   protocol.TypeEvent,
		Action: protocol.ActionNetworkChanged,
		Data:   json.RawMessage(`{"network":"livenet"}`),
	})
	if err != nil {
		t.Fatalf("Send event: %v", err)
	}

	msgs := out.all()
	if len(msgs) != 1 || msgs[0].Type != "event" || msgs[0].Action != protocol.ActionNetworkChanged {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestMalformedInbound(t *testing.T) {
	b, _ := newTestBridge(t, time.Minute, func(string, protocol.Envelope) {})

	if err := b.HandleInbound([]byte(`{not json`)); err == nil {
		t.Fatal("malformed message should error")
	}
	if err := b.HandleInbound([]byte(`{"type":"request","action":"get-balance"}`)); err == nil {
		t.Fatal("request without callbackId should error")
	}
	if err := b.HandleInbound([]byte(`{"type":"banana"}`)); err == nil {
		t.Fatal("unknown type should error")
	}
}
