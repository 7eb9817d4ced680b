// Package api provides the HTTP and WebSocket surface of walletd.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/sat20-labs/walletd/internal/approval"
	"github.com/sat20-labs/walletd/internal/auth"
	"github.com/sat20-labs/walletd/internal/bridge"
	"github.com/sat20-labs/walletd/internal/channel"
	"github.com/sat20-labs/walletd/internal/config"
	"github.com/sat20-labs/walletd/internal/engine"
	"github.com/sat20-labs/walletd/internal/router"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// wsContexts maps the context path segment of /ws/{context} to the
// logical channel name it registers under.
var wsContexts = map[string]string{
	"content":    protocol.ChannelContent,
	"popup":      protocol.ChannelPopup,
	"webview":    protocol.ChannelWebview,
	"keep-alive": protocol.ChannelKeepAlive,
}

// Server is the walletd HTTP API server.
type Server struct {
	channels   *channel.Registry
	router     *router.Router
	approvals  *approval.Manager
	engines    *engine.Manager
	auth       *auth.Service
	upgrader   websocket.Upgrader
	reqTimeout time.Duration
	mux        *chi.Mux
	logger     *slog.Logger
	startTime  time.Time

	httpSrv *http.Server
}

// NewServer creates the API server and mounts its routes.
func NewServer(cfg config.ServerConfig, channels *channel.Registry, rt *router.Router,
	approvals *approval.Manager, engines *engine.Manager, authSvc *auth.Service,
	logger *slog.Logger) *Server {

	srv := &Server{
		channels:   channels,
		router:     rt,
		approvals:  approvals,
		engines:    engines,
		auth:       authSvc,
		upgrader:   makeUpgrader(cfg.AllowedOrigins),
		reqTimeout: cfg.RequestTimeout.Duration,
		logger:     logger.With("component", "api"),
		startTime:  time.Now(),
	}
	srv.mux = srv.routes()
	srv.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/approvals/{windowID}", s.handleApprovalData)
	})
	r.Get("/ws/webview-bridge", s.handleWebviewBridge)
	r.Get("/ws/{context}", s.handleWS)

	return r
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Info("api server listening", "addr", s.httpSrv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"engine":  s.engines.State().String(),
		"pending": s.approvals.PendingCount(),
	})
}

func (s *Server) handleApprovalData(w http.ResponseWriter, r *http.Request) {
	windowID := chi.URLParam(r, "windowID")
	env, ok := s.approvals.ApprovalData(windowID)
	if !ok {
		writeError(w, http.StatusNotFound, "no pending approval for window")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name, ok := wsContexts[chi.URLParam(r, "context")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown context")
		return
	}

	if _, err := s.auth.ValidateToken(bearerToken(r)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := channel.NewWS(name, conn, s.router.Handle, func(c *channel.WSChannel) {
		s.channels.DisconnectChannel(c)
	}, s.logger)
	s.channels.Register(name, ch)
	s.logger.Info("context attached", "channel", name, "remote", r.RemoteAddr)
}

// handleWebviewBridge attaches an embedded webview speaking the callback
// message shape instead of raw envelopes. The bridge registers under the
// webview channel name, so responses and events reach it like any other
// context.
func (s *Server) handleWebviewBridge(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.ValidateToken(bearerToken(r)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	br := bridge.New(s.router.Handle, s.reqTimeout, s.logger)
	var writeMu sync.Mutex
	br.Attach(func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	})
	s.channels.Register(protocol.ChannelWebview, br)
	s.logger.Info("webview bridge attached", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.channels.DisconnectChannel(br)
			_ = conn.Close()
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := br.HandleInbound(msg); err != nil {
				s.logger.Warn("webview message rejected", "error", err)
			}
		}
	}()
}

// requireAuth guards REST routes with the same bearer tokens the
// WebSocket attach uses.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ValidateToken(bearerToken(r)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header, falling
// back to the token query parameter for WebSocket clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
