package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

const platformSlack = "slack"

var slackReactions = map[ReactionKind]string{
	ReactionLike: "+1",
}

// SlackAdapter implements Adapter for Slack using Socket Mode.
type SlackAdapter struct {
	client      *slack.Client
	socket      *socketmode.Client
	handler     EventHandler
	botUserID   string
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack gateway adapter.
// botToken is the Bot User OAuth Token (xoxb-...).
// appToken is the App-Level Token (xapp-...) for Socket Mode.
func NewSlackAdapter(botToken, appToken string, logger *zap.Logger) *SlackAdapter {
	client := slack.New(botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socket := socketmode.New(client,
		socketmode.OptionLog(zap.NewStdLog(logger)),
	)

	return &SlackAdapter{
		client: client,
		socket: socket,
		logger: logger,
	}
}

func (a *SlackAdapter) Platform() string { return platformSlack }

func (a *SlackAdapter) OnEvent(h EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Connect verifies the bot token and starts the Socket Mode event loop.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		a.setError(fmt.Sprintf("auth test: %v", err))
		return fmt.Errorf("slack auth: %w", err)
	}

	a.mu.Lock()
	a.botUserID = auth.UserID
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	go a.handleEvents(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			a.setError(err.Error())
			a.logger.Error("slack socket mode error", zap.Error(err))
		}
	}()
	a.logger.Info("slack adapter connected via socket mode", zap.String("bot_user", auth.User))
	return nil
}

func (a *SlackAdapter) setError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.lastError = msg
}

// handleEvents processes incoming Socket Mode events.
func (a *SlackAdapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.processEvent(ctx, evt)
		}
	}
}

func (a *SlackAdapter) processEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}
	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}

	a.mu.RLock()
	h := a.handler
	botUserID := a.botUserID
	a.mu.RUnlock()
	if h == nil {
		return
	}

	switch inner := eventsAPI.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Ignore bot messages and edits to avoid loops.
		if inner.BotID != "" || inner.SubType != "" || inner.User == botUserID {
			return
		}
		h.OnText(ctx, &TextMessage{
			Conversation: Conversation{Platform: platformSlack, ChannelID: inner.Channel},
			SenderID:     inner.User,
			SenderName:   inner.User,
			MessageID:    inner.TimeStamp,
			Text:         inner.Text,
			Timestamp:    time.Now(),
		})
	case *slackevents.MemberJoinedChannelEvent:
		// The bot joining a channel is the Slack equivalent of an accepted
		// connection; greet the channel once.
		if inner.User != botUserID {
			return
		}
		h.OnConnectionRequest(ctx, &ConnectionRequest{
			RequesterID:  inner.Inviter,
			Conversation: Conversation{Platform: platformSlack, ChannelID: inner.Channel},
			Status:       ConnectionAccepted,
		})
	}
}

// SendText posts a message to a Slack channel.
func (a *SlackAdapter) SendText(ctx context.Context, channelID, body string) error {
	_, _, err := a.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(body, false),
	)
	if err != nil {
		a.logger.Error("slack send failed",
			zap.String("channel", channelID), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// SendReaction adds an emoji reaction to a message identified by its timestamp.
func (a *SlackAdapter) SendReaction(ctx context.Context, channelID, messageID string, kind ReactionKind) error {
	name, ok := slackReactions[kind]
	if !ok {
		return fmt.Errorf("slack: unsupported reaction %q", kind)
	}
	if err := a.client.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, messageID)); err != nil {
		return fmt.Errorf("slack reaction: %w", err)
	}
	return nil
}

// AcceptConnection is a no-op: Slack has no connection handshake once the
// bot is a channel member.
func (a *SlackAdapter) AcceptConnection(context.Context, string) error {
	return nil
}

// Close is a no-op; the socket context cancellation handles shutdown.
func (a *SlackAdapter) Close() error {
	return nil
}

func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  platformSlack,
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = "bot_user=" + a.botUserID
	}
	return s
}
