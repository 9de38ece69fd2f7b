package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages all platform adapters, routes outbound traffic by platform
// and serializes inbound events so that each one is handled to completion
// before the next starts.
type Gateway struct {
	adapters map[string]Adapter
	handler  EventHandler
	mu       sync.RWMutex
	dispatch sync.Mutex
	logger   *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler sets the receiver of all inbound events.
func (g *Gateway) SetHandler(h EventHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// Register adds an adapter and routes its events through the gateway.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnEvent(g)
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// OnText forwards a text message to the handler under the dispatch lock.
func (g *Gateway) OnText(ctx context.Context, msg *TextMessage) {
	h := g.currentHandler()
	if h == nil {
		return
	}
	g.dispatch.Lock()
	defer g.dispatch.Unlock()
	h.OnText(ctx, msg)
}

// OnConnectionRequest forwards a connection request under the dispatch lock.
func (g *Gateway) OnConnectionRequest(ctx context.Context, req *ConnectionRequest) {
	h := g.currentHandler()
	if h == nil {
		return
	}
	g.dispatch.Lock()
	defer g.dispatch.Unlock()
	h.OnConnectionRequest(ctx, req)
}

func (g *Gateway) currentHandler() EventHandler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.handler
}

// ConnectAll starts all registered adapters.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

func (g *Gateway) adapter(platform string) (Adapter, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform: %s", platform)
	}
	return a, nil
}

// SendText sends a text message to a conversation.
func (g *Gateway) SendText(ctx context.Context, conv Conversation, body string) error {
	a, err := g.adapter(conv.Platform)
	if err != nil {
		return err
	}
	return a.SendText(ctx, conv.ChannelID, body)
}

// SendReaction reacts to a message in a conversation.
func (g *Gateway) SendReaction(ctx context.Context, conv Conversation, messageID string, kind ReactionKind) error {
	a, err := g.adapter(conv.Platform)
	if err != nil {
		return err
	}
	return a.SendReaction(ctx, conv.ChannelID, messageID, kind)
}

// AcceptConnection accepts a connection request on the conversation's platform.
func (g *Gateway) AcceptConnection(ctx context.Context, conv Conversation, requesterID string) error {
	a, err := g.adapter(conv.Platform)
	if err != nil {
		return err
	}
	return a.AcceptConnection(ctx, requesterID)
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// StatusAll reports the status of every adapter, sorted by platform.
func (g *Gateway) StatusAll() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]AdapterStatus, 0, len(g.adapters))
	for platform, a := range g.adapters {
		if r, ok := a.(StatusReporter); ok {
			out = append(out, r.Status())
			continue
		}
		out = append(out, AdapterStatus{Platform: platform, Connected: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
