// Package service wires walletd's components together and owns their
// lifecycle.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sat20-labs/walletd/internal/api"
	"github.com/sat20-labs/walletd/internal/approval"
	"github.com/sat20-labs/walletd/internal/auth"
	"github.com/sat20-labs/walletd/internal/authz"
	"github.com/sat20-labs/walletd/internal/channel"
	"github.com/sat20-labs/walletd/internal/config"
	"github.com/sat20-labs/walletd/internal/engine"
	"github.com/sat20-labs/walletd/internal/handlers"
	"github.com/sat20-labs/walletd/internal/keepalive"
	"github.com/sat20-labs/walletd/internal/router"
	"github.com/sat20-labs/walletd/internal/store"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Service is the assembled walletd background.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	store     store.Store
	channels  *channel.Registry
	engines   *engine.Manager
	authz     *authz.Manager
	approvals *approval.Manager
	router    *router.Router
	server    *api.Server
	monitor   *keepalive.Monitor
}

// New builds the service from configuration. The backing engine is not
// started until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	st, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	channels := channel.NewRegistry(logger)

	// The router is built after the engine manager but replays queued
	// envelopes through it, hence the indirection.
	var rt *router.Router
	replay := func(ch string, env protocol.Envelope) {
		rt.Replay(ch, env)
	}
	engines := engine.NewManager(engine.LoadProcess(logger), replay, logger)

	az := authz.New(st, cfg.Authz.Actions, cfg.Authz.CacheTTL.Duration, logger)

	opener := approval.NewPopupOpener(channels, logger)
	approvals := approval.New(cfg.Approval.Actions, opener, channels, cfg.Approval.Route, logger)
	approvals.OnApproved = func(ctx context.Context, env protocol.Envelope) {
		if env.Action != protocol.ActionRequestAccounts {
			return
		}
		if err := az.Authorize(ctx, env.Metadata.Origin); err != nil {
			logger.Error("failed to persist origin authorization",
				"origin", env.Metadata.Origin, "error", err)
		}
	}

	registry := router.NewRegistry()
	registry.Register(handlers.NewAccountHandler(engines, func(ctx context.Context, network string) error {
		engineCfg := cfg.Engine
		engineCfg.Network = network
		return engines.Reinitialize(ctx, engineCfg)
	}))
	registry.Register(handlers.NewTransactionHandler(engines))
	registry.Register(handlers.NewSigningHandler(engines))
	registry.Register(handlers.NewUtxoHandler(engines))
	registry.Register(handlers.NewPopupHandler(approvals))

	rt = router.New(registry, channels, az, approvals, engines, st, logger)

	// A vanished channel can never deliver its pending approvals.
	channels.OnDisconnect(approvals.RejectChannel)

	authSvc := auth.New(cfg.Server.JWTSecret, 0)
	server := api.NewServer(cfg.Server, channels, rt, approvals, engines, authSvc, logger)

	monitor := keepalive.New(
		&channelPinger{channels: channels},
		&wakeBroadcaster{channels: channels},
		cfg.KeepAlive, logger)

	return &Service{
		cfg:       cfg,
		logger:    logger.With("component", "service"),
		store:     st,
		channels:  channels,
		engines:   engines,
		authz:     az,
		approvals: approvals,
		router:    rt,
		server:    server,
		monitor:   monitor,
	}, nil
}

// Run starts the engine and serves until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := s.engines.Initialize(ctx, s.cfg.Engine); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	s.monitor.Connect()

	err := s.server.Run(ctx)
	s.shutdown()
	return err
}

func (s *Service) shutdown() {
	s.logger.Info("shutting down")
	s.monitor.Disconnect()
	s.approvals.CloseAll()
	s.channels.Close()
	if err := s.engines.Close(); err != nil {
		s.logger.Warn("engine close", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close", "error", err)
	}
}

// channelPinger probes the keep-alive channel by writing a ping event;
// a failed or undeliverable write means the content side is gone.
type channelPinger struct {
	channels *channel.Registry
}

func (p *channelPinger) Ping(ctx context.Context) error {
	env := protocol.Envelope{
		Type:   protocol.TypeEvent,
		Action: protocol.ActionPing,
		Metadata: protocol.Metadata{
			MessageID: uuid.New().String(),
			From:      protocol.ContextBackground,
			To:        protocol.ContextContent,
		},
	}
	if !p.channels.Send(protocol.ChannelKeepAlive, env) {
		return fmt.Errorf("keep-alive channel unreachable")
	}
	return nil
}

// wakeBroadcaster fires the one-shot wake event once reconnection is
// abandoned, asking any surviving context to re-establish its channels.
type wakeBroadcaster struct {
	channels *channel.Registry
}

func (w *wakeBroadcaster) Wake(ctx context.Context) error {
	data, _ := json.Marshal(map[string]string{"reason": "keep-alive lost"})
	env := protocol.Envelope{
		Type:   protocol.TypeEvent,
		Action: protocol.ActionWake,
		Data:   data,
		Metadata: protocol.Metadata{
			MessageID: uuid.New().String(),
			From:      protocol.ContextBackground,
			To:        protocol.ContextContent,
		},
	}
	if w.channels.Broadcast(env) == 0 {
		return fmt.Errorf("no channels reachable for wake")
	}
	return nil
}
