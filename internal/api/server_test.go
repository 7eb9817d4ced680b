package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sat20-labs/walletd/internal/approval"
	"github.com/sat20-labs/walletd/internal/auth"
	"github.com/sat20-labs/walletd/internal/authz"
	"github.com/sat20-labs/walletd/internal/channel"
	"github.com/sat20-labs/walletd/internal/config"
	"github.com/sat20-labs/walletd/internal/engine"
	"github.com/sat20-labs/walletd/internal/router"
	"github.com/sat20-labs/walletd/internal/store"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

type memStore struct {
	mu        sync.Mutex
	origins   map[string]bool
	hasWallet bool
}

func (s *memStore) AddOrigin(ctx context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origins[origin] = true
	return nil
}
func (s *memStore) RemoveOrigin(ctx context.Context, origin string) error { return nil }
func (s *memStore) HasOrigin(ctx context.Context, origin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origins[origin], nil
}
func (s *memStore) ListOrigins(ctx context.Context) ([]string, error)      { return nil, nil }
func (s *memStore) PutWallet(ctx context.Context, w *store.Wallet) error   { return nil }
func (s *memStore) GetWallet(ctx context.Context, id string) (*store.Wallet, error) {
	return nil, nil
}
func (s *memStore) HasWallet(ctx context.Context) (bool, error)       { return s.hasWallet, nil }
func (s *memStore) RemoveWallet(ctx context.Context, id string) error { return nil }
func (s *memStore) Ping(ctx context.Context) error                    { return nil }
func (s *memStore) Close() error                                      { return nil }

type stubOpener struct{}

func (stubOpener) Open(ctx context.Context, route string) (string, error) { return "win-1", nil }
func (stubOpener) Close(windowID string) error                            { return nil }

func newTestServer(t *testing.T) (*Server, *approval.Manager, *auth.Service) {
	t.Helper()
	logger := slog.Default()

	st := &memStore{origins: map[string]bool{}, hasWallet: true}
	channels := channel.NewRegistry(logger)

	var rt *router.Router
	engines := engine.NewManager(
		func(ctx context.Context, cfg config.EngineConfig) (engine.Engine, error) {
			return stubEngine{}, nil
		},
		func(ch string, env protocol.Envelope) { rt.Replay(ch, env) },
		logger)
	if err := engines.Initialize(context.Background(), config.EngineConfig{}); err != nil {
		t.Fatalf("engine init: %v", err)
	}

	az := authz.New(st, nil, time.Minute, logger)
	approvals := approval.New(nil, stubOpener{}, channels, "/wallet/approve", logger)

	registry := router.NewRegistry()
	rt = router.New(registry, channels, az, approvals, engines, st, logger)

	authSvc := auth.New("test-secret", time.Hour)
	srv := NewServer(config.ServerConfig{Addr: "127.0.0.1:0"}, channels, rt, approvals, engines, authSvc, logger)
	return srv, approvals, authSvc
}

type stubEngine struct{}

func (stubEngine) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	return json.RawMessage(`null`), nil
}
func (stubEngine) Release() error { return nil }

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["engine"] != "ready" {
		t.Fatalf("body = %v", body)
	}
}

func TestApprovalDataRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/approvals/win-1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/approvals/win-1", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want 401", rec.Code)
	}
}

func TestApprovalData(t *testing.T) {
	srv, approvals, authSvc := newTestServer(t)

	token, err := authSvc.IssueToken("popup")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	// Unknown window: 404.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/approvals/win-ghost", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status for unknown window = %d, want 404", rec.Code)
	}

	// Pending window: the original envelope comes back.
	env := protocol.Envelope{
		Type:   protocol.TypeApprove,
		Action: protocol.ActionSendBitcoin,
		Metadata: protocol.Metadata{
			MessageID: "m1",
			From:      protocol.ContextInjected,
			To:        protocol.ContextBackground,
			Origin:    "https://a.example.com",
		},
	}
	if err := approvals.RequestApproval(context.Background(), protocol.ChannelContent, env); err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/approvals/win-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var got protocol.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if got.Action != protocol.ActionSendBitcoin || got.Metadata.WindowID != "win-1" {
		t.Fatalf("envelope = %+v", got)
	}
}

func TestWSUnknownContext(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/fridge", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWSAttachAndPing(t *testing.T) {
	srv, _, authSvc := newTestServer(t)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	token, err := authSvc.IssueToken("content")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/content?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ping := protocol.Envelope{
		Type:   protocol.TypeRequest,
		Action: protocol.ActionPing,
		Metadata: protocol.Metadata{
			MessageID: "m1",
			From:      protocol.ContextContent,
			To:        protocol.ContextBackground,
		},
	}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp protocol.Envelope
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Metadata.MessageID != "m1" || string(resp.Data) != `"pong"` {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWSReconnectReplacesChannel(t *testing.T) {
	srv, _, authSvc := newTestServer(t)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	token, err := authSvc.IssueToken("content")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/content?token=" + token

	conn1, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer conn1.Close()

	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer conn2.Close()

	// The first connection is closed by the replacement; wait for its
	// server-side teardown to run before probing the channel.
	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn1.ReadMessage(); err == nil {
		t.Fatal("first connection still alive after reconnect")
	}
	deadline := time.Now().Add(2 * time.Second)
	for !srv.channels.Connected(protocol.ChannelContent) {
		if time.Now().After(deadline) {
			t.Fatal("content channel gone after reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The replacement channel must still answer.
	ping := protocol.Envelope{
		Type:   protocol.TypeRequest,
		Action: protocol.ActionPing,
		Metadata: protocol.Metadata{
			MessageID: "m2",
			From:      protocol.ContextContent,
			To:        protocol.ContextBackground,
		},
	}
	if err := conn2.WriteJSON(ping); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp protocol.Envelope
	if err := conn2.ReadJSON(&resp); err != nil {
		t.Fatalf("read on replacement connection: %v", err)
	}
	if resp.Metadata.MessageID != "m2" || string(resp.Data) != `"pong"` {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWebviewBridgeRoundTrip(t *testing.T) {
	srv, _, authSvc := newTestServer(t)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	token, err := authSvc.IssueToken("webview")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/webview-bridge?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := []byte(`{"type":"request","callbackId":"cb-1","action":"ping"}`)
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp struct {
		Type       string          `json:"type"`
		CallbackID string          `json:"callbackId"`
		Data       json.RawMessage `json:"data"`
		Error      *protocol.Error `json:"error"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != "response" || resp.CallbackID != "cb-1" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Error != nil || string(resp.Data) != `"pong"` {
		t.Fatalf("response = %+v, want pong", resp)
	}
}

func TestWSRejectsBadToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/content?token=garbage", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
