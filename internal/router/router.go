package router

import (
	"context"

	"github.com/nidhogg/weatherbot/internal/dispatch"
	"github.com/nidhogg/weatherbot/internal/gateway"
	"github.com/nidhogg/weatherbot/internal/metrics"
	"go.uber.org/zap"
)

// MessageRouter turns inbound events into engine decisions and carries them
// out on a transport. It implements gateway.EventHandler.
type MessageRouter struct {
	engine    *dispatch.Engine
	transport gateway.Transport
	logger    *zap.Logger
}

// New creates a new MessageRouter.
func New(engine *dispatch.Engine, transport gateway.Transport, logger *zap.Logger) *MessageRouter {
	return &MessageRouter{
		engine:    engine,
		transport: transport,
		logger:    logger,
	}
}

// OnText handles an inbound chat message.
func (mr *MessageRouter) OnText(ctx context.Context, msg *gateway.TextMessage) {
	mr.logger.Debug("routing message",
		zap.String("conversation", msg.Conversation.Key()),
		zap.String("user", msg.SenderName),
	)

	action := mr.engine.HandleText(ctx, msg)
	mr.Execute(ctx, action)
}

// OnConnectionRequest accepts the connection and greets with the help text.
// Cancelled requests are ignored.
func (mr *MessageRouter) OnConnectionRequest(ctx context.Context, req *gateway.ConnectionRequest) {
	if req.Status == gateway.ConnectionCancelled {
		mr.logger.Debug("ignoring cancelled connection request",
			zap.String("conversation", req.Conversation.Key()))
		return
	}

	mr.logger.Info("connection request",
		zap.String("conversation", req.Conversation.Key()),
		zap.String("requester", req.RequesterID),
		zap.String("status", string(req.Status)))

	if err := mr.transport.AcceptConnection(ctx, req.Conversation, req.RequesterID); err != nil {
		mr.fail("accept", req.Conversation, err)
		return
	}
	if err := mr.transport.SendText(ctx, req.Conversation, mr.engine.HelpText()); err != nil {
		mr.fail("send_text", req.Conversation, err)
	}
}

// Execute performs an action: reaction first, then relays, then the reply.
// Failures are logged and never abort the remaining steps.
func (mr *MessageRouter) Execute(ctx context.Context, a dispatch.Action) {
	switch a.Kind {
	case dispatch.ActionNone:
		return
	case dispatch.ActionSendTextAndAcknowledge, dispatch.ActionAcknowledge:
		if a.MessageID != "" {
			if err := mr.transport.SendReaction(ctx, a.Conversation, a.MessageID, gateway.ReactionLike); err != nil {
				mr.fail("reaction", a.Conversation, err)
			}
		}
	}

	for _, out := range a.Relay {
		if err := mr.transport.SendText(ctx, out.Conversation, out.Body); err != nil {
			mr.fail("relay", out.Conversation, err)
		}
	}

	if a.Kind == dispatch.ActionAcknowledge || a.Body == "" {
		return
	}
	if err := mr.transport.SendText(ctx, a.Conversation, a.Body); err != nil {
		mr.fail("send_text", a.Conversation, err)
	}
}

func (mr *MessageRouter) fail(action string, conv gateway.Conversation, err error) {
	metrics.SendFailures.WithLabelValues(action).Inc()
	mr.logger.Error("transport call failed",
		zap.String("action", action),
		zap.String("conversation", conv.Key()),
		zap.Error(err))
}
