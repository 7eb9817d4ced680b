package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sat20-labs/walletd/internal/approval"
	"github.com/sat20-labs/walletd/internal/authz"
	"github.com/sat20-labs/walletd/internal/channel"
	"github.com/sat20-labs/walletd/internal/engine"
	"github.com/sat20-labs/walletd/pkg/protocol"
)

// WalletChecker reports whether a wallet exists. Satisfied by store.Store.
type WalletChecker interface {
	HasWallet(ctx context.Context) (bool, error)
}

// Router is the central message dispatcher. Every envelope received on
// any channel passes through Handle, which applies wallet and
// authorization gates and routes by message type.
type Router struct {
	registry  *Registry
	channels  *channel.Registry
	authz     *authz.Manager
	approvals *approval.Manager
	engines   *engine.Manager
	wallets   WalletChecker
	logger    *slog.Logger
}

// New creates a router wired to its collaborators.
func New(registry *Registry, channels *channel.Registry, az *authz.Manager,
	ap *approval.Manager, eng *engine.Manager, wallets WalletChecker, logger *slog.Logger) *Router {

	return &Router{
		registry:  registry,
		channels:  channels,
		authz:     az,
		approvals: ap,
		engines:   eng,
		wallets:   wallets,
		logger:    logger.With("component", "router"),
	}
}

// Handle processes one inbound envelope from the named channel. It never
// returns an error to the transport; failures are converted into error
// response envelopes sent back to the caller.
func (r *Router) Handle(channelName string, env protocol.Envelope) {
	r.dispatch(channelName, env, true)
}

// Replay re-dispatches an envelope that was queued while the engine
// loaded. The readiness gate is skipped so a drained envelope cannot
// re-queue itself.
func (r *Router) Replay(channelName string, env protocol.Envelope) {
	r.dispatch(channelName, env, false)
}

func (r *Router) dispatch(channelName string, env protocol.Envelope, gated bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic handling message",
				"channel", channelName,
				"action", env.Action,
				"panic", rec)
			r.respond(channelName, env, env.ErrorResponse(&protocol.Error{
				Code:    protocol.CodeInternal,
				Message: "internal error",
			}))
		}
	}()

	ctx := context.Background()

	// Events are fire-and-forget notifications: forward to every
	// connected channel except the one that produced them.
	if env.Type == protocol.TypeEvent {
		r.broadcast(channelName, env)
		return
	}

	// Control traffic bypasses the readiness, wallet, and authorization
	// gates: heartbeats must flow while the engine loads, and the popup
	// must be able to resolve approvals it already holds.
	if isControl(env.Action) {
		r.handleRequest(ctx, channelName, env)
		return
	}

	// Hold messages that arrive while the backing engine is loading;
	// they are replayed in order once it becomes ready.
	if gated && r.engines.Gate(channelName, env) {
		r.logger.Debug("message queued until engine ready",
			"channel", channelName, "action", env.Action)
		return
	}

	if env.Action != protocol.ActionRequestAccounts {
		ok, err := r.wallets.HasWallet(ctx)
		if err != nil {
			r.logger.Error("wallet check failed", "error", err)
			r.respond(channelName, env, env.ErrorResponse(protocol.Internal(err)))
			return
		}
		// Without a wallet nothing can be served or signed; only the
		// request-accounts onboarding flow exempted above proceeds.
		if !ok {
			r.respond(channelName, env, env.ErrorResponse(protocol.ErrNoWallet))
			return
		}
	}

	if r.authz.RequiresAuthorization(env.Action) {
		authorized, err := r.authz.IsAuthorized(ctx, env.Metadata.Origin)
		if err != nil {
			r.logger.Error("authorization check failed",
				"origin", env.Metadata.Origin, "error", err)
			r.respond(channelName, env, env.ErrorResponse(protocol.Internal(err)))
			return
		}
		if !authorized {
			r.logger.Info("rejected unauthorized request",
				"origin", env.Metadata.Origin, "action", env.Action)
			r.respond(channelName, env, env.ErrorResponse(protocol.ErrUnauthorized))
			return
		}
	}

	switch env.Type {
	case protocol.TypeRequest:
		r.handleRequest(ctx, channelName, env)
	case protocol.TypeApprove:
		r.handleApprove(ctx, channelName, env)
	default:
		r.respond(channelName, env, env.ErrorResponse(
			protocol.InvalidRequest("unknown message type: "+string(env.Type))))
	}
}

// isControl reports whether an action is part of the transport's own
// machinery rather than a wallet operation.
func isControl(action protocol.Action) bool {
	switch action {
	case protocol.ActionPing,
		protocol.ActionGetApprovalData,
		protocol.ActionApprovalResponse:
		return true
	}
	return false
}

func (r *Router) handleRequest(ctx context.Context, channelName string, env protocol.Envelope) {
	if env.Action == protocol.ActionPing {
		r.respond(channelName, env, env.Response(json.RawMessage(`"pong"`)))
		return
	}

	handler, ok := r.registry.Get(env.Action)
	if !ok {
		r.respond(channelName, env, env.ErrorResponse(protocol.ErrMethodNotFound))
		return
	}

	data, err := handler.Handle(ctx, env.Action, env.Data)
	if err != nil {
		r.logger.Warn("handler error",
			"action", env.Action,
			"origin", env.Metadata.Origin,
			"error", err)
		r.respond(channelName, env, env.ErrorResponse(protocol.AsError(err)))
		return
	}
	r.respond(channelName, env, env.Response(data))
}

func (r *Router) handleApprove(ctx context.Context, channelName string, env protocol.Envelope) {
	if !r.approvals.RequiresApproval(env.Action) {
		r.respond(channelName, env, env.ErrorResponse(
			protocol.InvalidRequest("action does not require approval: "+string(env.Action))))
		return
	}
	if err := r.approvals.RequestApproval(ctx, channelName, env); err != nil {
		r.logger.Error("failed to open approval window",
			"action", env.Action, "error", err)
		r.respond(channelName, env, env.ErrorResponse(protocol.Internal(err)))
	}
}

// respond sends one response envelope back toward the original caller.
// The reply channel is derived from the inbound from context: injected
// pages are reached through the content relay, the webview and popup
// through their own channels.
func (r *Router) respond(channelName string, inbound, resp protocol.Envelope) {
	resp.Metadata.To = inbound.Metadata.From
	name := replyChannel(inbound.Metadata.From, channelName)
	// Keep-alive traffic is answered on its own channel regardless of
	// the declared sender context.
	if channelName == protocol.ChannelKeepAlive || channelName == protocol.ChannelPopup {
		name = channelName
	}
	if !r.channels.Send(name, resp) {
		r.logger.Warn("response dropped, channel gone",
			"channel", name, "action", resp.Action)
	}
}

func (r *Router) broadcast(from string, env protocol.Envelope) {
	n := r.channels.BroadcastExcept(from, env)
	r.logger.Debug("event broadcast", "action", env.Action, "delivered", n)
}

func replyChannel(from protocol.Context, arrival string) string {
	switch from {
	case protocol.ContextInjected, protocol.ContextContent:
		return protocol.ChannelContent
	case protocol.ContextWebview:
		return protocol.ChannelWebview
	case protocol.ContextPopup:
		return protocol.ChannelPopup
	default:
		return arrival
	}
}
