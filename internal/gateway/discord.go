package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const platformDiscord = "discord"

var discordReactions = map[ReactionKind]string{
	ReactionLike: "👍",
}

// DiscordAdapter implements Adapter for Discord using the bot gateway.
type DiscordAdapter struct {
	token       string
	session     *discordgo.Session
	handler     EventHandler
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord gateway adapter.
func NewDiscordAdapter(token string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:  token,
		logger: logger,
	}
}

func (a *DiscordAdapter) Platform() string { return platformDiscord }

func (a *DiscordAdapter) OnEvent(h EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Connect opens the Discord gateway websocket.
func (a *DiscordAdapter) Connect(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("session create: %v", err)
		a.mu.Unlock()
		return fmt.Errorf("discord session: %w", err)
	}
	a.session = session

	a.session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.onMessageCreate(ctx, s, m)
	})
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		a.onGuildMemberAdd(ctx, s, m)
	})

	if err := a.session.Open(); err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("open failed: %v", err)
		a.connected = false
		a.mu.Unlock()
		return fmt.Errorf("discord open: %w", err)
	}

	now := time.Now()
	a.mu.Lock()
	a.connected = true
	a.connectedAt = now
	a.lastError = ""
	a.mu.Unlock()

	guildCount := len(a.session.State.Guilds)
	if guildCount == 0 {
		a.logger.Warn("discord bot not added to any server, invite it first")
	}

	a.logger.Info("discord adapter connected",
		zap.String("user", a.session.State.User.Username),
		zap.Int("guilds", guildCount))
	return nil
}

func (a *DiscordAdapter) eventHandler() EventHandler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handler
}

// onMessageCreate handles incoming Discord messages.
func (a *DiscordAdapter) onMessageCreate(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore messages from the bot itself
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	h := a.eventHandler()
	if h == nil {
		return
	}

	h.OnText(ctx, &TextMessage{
		Conversation: Conversation{Platform: platformDiscord, ChannelID: m.ChannelID},
		SenderID:     m.Author.ID,
		SenderName:   m.Author.Username,
		MessageID:    m.ID,
		Text:         m.Content,
		Timestamp:    m.Timestamp,
	})
}

// onGuildMemberAdd greets new server members in a direct message.
func (a *DiscordAdapter) onGuildMemberAdd(ctx context.Context, s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	h := a.eventHandler()
	if h == nil {
		return
	}

	dm, err := s.UserChannelCreate(m.User.ID)
	if err != nil {
		a.logger.Warn("discord open dm failed",
			zap.String("user", m.User.ID), zap.Error(err))
		return
	}
	h.OnConnectionRequest(ctx, &ConnectionRequest{
		RequesterID:  m.User.ID,
		Conversation: Conversation{Platform: platformDiscord, ChannelID: dm.ID},
		Status:       ConnectionPending,
	})
}

// SendText posts a message to a Discord channel.
func (a *DiscordAdapter) SendText(_ context.Context, channelID, body string) error {
	if a.session == nil {
		return fmt.Errorf("discord: session not connected")
	}
	if _, err := a.session.ChannelMessageSend(channelID, body); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// SendReaction adds an emoji reaction to a message.
func (a *DiscordAdapter) SendReaction(_ context.Context, channelID, messageID string, kind ReactionKind) error {
	if a.session == nil {
		return fmt.Errorf("discord: session not connected")
	}
	emoji, ok := discordReactions[kind]
	if !ok {
		return fmt.Errorf("discord: unsupported reaction %q", kind)
	}
	if err := a.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("discord reaction: %w", err)
	}
	return nil
}

// AcceptConnection is a no-op: joining a guild needs no confirmation from
// the bot.
func (a *DiscordAdapter) AcceptConnection(context.Context, string) error {
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  platformDiscord,
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		guildCount := 0
		if a.session != nil && a.session.State != nil {
			guildCount = len(a.session.State.Guilds)
		}
		s.Details = fmt.Sprintf("bot=%s, guilds=%d",
			a.session.State.User.Username, guildCount)
	}
	return s
}
