package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Conversation identifies a chat thread on one platform.
type Conversation struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
}

// Key is the stable "platform:channel" form used to scope per-conversation state.
func (c Conversation) Key() string {
	return c.Platform + ":" + c.ChannelID
}

func (c Conversation) String() string { return c.Key() }

// IsZero reports whether the conversation is unset.
func (c Conversation) IsZero() bool {
	return c.Platform == "" && c.ChannelID == ""
}

// ParseConversation parses the "platform:channel" form. The channel part may
// itself contain colons.
func ParseConversation(s string) (Conversation, error) {
	platform, channel, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || platform == "" || channel == "" {
		return Conversation{}, fmt.Errorf("invalid conversation %q: want platform:channel", s)
	}
	return Conversation{Platform: platform, ChannelID: channel}, nil
}

// TextMessage is a normalized chat message from any platform.
type TextMessage struct {
	Conversation Conversation `json:"conversation"`
	SenderID     string       `json:"sender_id"`
	SenderName   string       `json:"sender_name"`
	MessageID    string       `json:"message_id"`
	Text         string       `json:"text"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ConnectionStatus is the state of a connection request.
type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionAccepted  ConnectionStatus = "accepted"
	ConnectionCancelled ConnectionStatus = "cancelled"
)

// ConnectionRequest is raised when a user connects to the bot or adds it to
// a conversation.
type ConnectionRequest struct {
	RequesterID  string           `json:"requester_id"`
	Conversation Conversation     `json:"conversation"`
	Status       ConnectionStatus `json:"status"`
}

// ReactionKind names the reactions the bot can send.
type ReactionKind string

const ReactionLike ReactionKind = "like"

// EventHandler consumes inbound events.
type EventHandler interface {
	OnText(ctx context.Context, msg *TextMessage)
	OnConnectionRequest(ctx context.Context, req *ConnectionRequest)
}

// Transport is the outbound surface the bot needs from a messaging platform.
type Transport interface {
	SendText(ctx context.Context, conv Conversation, body string) error
	SendReaction(ctx context.Context, conv Conversation, messageID string, kind ReactionKind) error
	AcceptConnection(ctx context.Context, conv Conversation, requesterID string) error
}

// Adapter connects one messaging platform to the gateway.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	OnEvent(h EventHandler)
	SendText(ctx context.Context, channelID, body string) error
	SendReaction(ctx context.Context, channelID, messageID string, kind ReactionKind) error
	AcceptConnection(ctx context.Context, requesterID string) error
	Close() error
}

// AdapterStatus describes the connection state of an adapter.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}

// StatusReporter is implemented by adapters that can report their health.
type StatusReporter interface {
	Status() AdapterStatus
}
