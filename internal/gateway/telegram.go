package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const platformTelegram = "telegram"

var telegramReactions = map[ReactionKind]string{
	ReactionLike: "👍",
}

// TelegramAPI abstracts the Bot API methods the adapter uses.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramAdapter implements Adapter for Telegram using long polling.
type TelegramAdapter struct {
	token       string
	api         TelegramAPI
	handler     EventHandler
	botName     string
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewTelegramAdapter creates a Telegram gateway adapter.
func NewTelegramAdapter(token string, logger *zap.Logger) *TelegramAdapter {
	return &TelegramAdapter{token: token, logger: logger}
}

func (a *TelegramAdapter) Platform() string { return platformTelegram }

func (a *TelegramAdapter) OnEvent(h EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Connect authenticates the bot and starts polling for updates.
func (a *TelegramAdapter) Connect(ctx context.Context) error {
	if a.api == nil {
		bot, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			a.mu.Lock()
			a.lastError = fmt.Sprintf("login: %v", err)
			a.mu.Unlock()
			return fmt.Errorf("telegram login: %w", err)
		}
		a.api = bot
		a.botName = bot.Self.UserName
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "my_chat_member"}
	updates := a.api.GetUpdatesChan(u)

	a.mu.Lock()
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	go a.poll(ctx, updates)
	a.logger.Info("telegram adapter connected", zap.String("bot", a.botName))
	return nil
}

func (a *TelegramAdapter) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			a.processUpdate(ctx, update)
		}
	}
}

func (a *TelegramAdapter) processUpdate(ctx context.Context, update tgbotapi.Update) {
	a.mu.RLock()
	h := a.handler
	a.mu.RUnlock()
	if h == nil {
		return
	}

	switch {
	case update.Message != nil && update.Message.Text != "":
		msg := update.Message
		if msg.From != nil && msg.From.IsBot {
			return
		}
		a.mu.RLock()
		botName := a.botName
		a.mu.RUnlock()
		senderID, senderName := "", ""
		if msg.From != nil {
			senderID = strconv.FormatInt(msg.From.ID, 10)
			senderName = msg.From.UserName
		}
		h.OnText(ctx, &TextMessage{
			Conversation: Conversation{Platform: platformTelegram, ChannelID: strconv.FormatInt(msg.Chat.ID, 10)},
			SenderID:     senderID,
			SenderName:   senderName,
			MessageID:    strconv.Itoa(msg.MessageID),
			Text:         stripBotMention(msg.Text, botName),
			Timestamp:    msg.Time(),
		})
	case update.MyChatMember != nil:
		cm := update.MyChatMember
		h.OnConnectionRequest(ctx, &ConnectionRequest{
			RequesterID:  strconv.FormatInt(cm.From.ID, 10),
			Conversation: Conversation{Platform: platformTelegram, ChannelID: strconv.FormatInt(cm.Chat.ID, 10)},
			Status:       telegramMemberStatus(cm.NewChatMember.Status),
		})
	}
}

// stripBotMention turns "/cmd@botName args" into "/cmd args". Group clients
// append the mention; commands addressed to other bots are left alone.
func stripBotMention(text, botName string) string {
	if botName == "" || !strings.HasPrefix(text, "/") {
		return text
	}
	end := strings.IndexAny(text, " \t\n")
	if end < 0 {
		end = len(text)
	}
	word := text[:end]
	at := strings.IndexByte(word, '@')
	if at < 0 || !strings.EqualFold(word[at+1:], botName) {
		return text
	}
	return word[:at] + text[end:]
}

// telegramMemberStatus maps the bot's new membership to a connection status.
func telegramMemberStatus(status string) ConnectionStatus {
	switch status {
	case "member", "administrator", "creator":
		return ConnectionAccepted
	case "left", "kicked":
		return ConnectionCancelled
	default:
		return ConnectionPending
	}
}

func parseChatID(channelID string) (int64, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", channelID, err)
	}
	return id, nil
}

// SendText sends a plain text message to a chat.
func (a *TelegramAdapter) SendText(_ context.Context, channelID, body string) error {
	if a.api == nil {
		return fmt.Errorf("telegram: not connected")
	}
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	if _, err := a.api.Send(tgbotapi.NewMessage(chatID, body)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

type telegramReaction struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// SendReaction calls setMessageReaction, which the typed client does not wrap.
func (a *TelegramAdapter) SendReaction(_ context.Context, channelID, messageID string, kind ReactionKind) error {
	if a.api == nil {
		return fmt.Errorf("telegram: not connected")
	}
	emoji, ok := telegramReactions[kind]
	if !ok {
		return fmt.Errorf("telegram: unsupported reaction %q", kind)
	}
	if _, err := parseChatID(channelID); err != nil {
		return err
	}

	params := make(tgbotapi.Params)
	params["chat_id"] = channelID
	params["message_id"] = messageID
	if err := params.AddInterface("reaction", []telegramReaction{{Type: "emoji", Emoji: emoji}}); err != nil {
		return fmt.Errorf("telegram reaction params: %w", err)
	}
	if _, err := a.api.MakeRequest("setMessageReaction", params); err != nil {
		return fmt.Errorf("telegram reaction: %w", err)
	}
	return nil
}

// AcceptConnection is a no-op: being added to a chat is already final.
func (a *TelegramAdapter) AcceptConnection(context.Context, string) error {
	return nil
}

// Close stops long polling.
func (a *TelegramAdapter) Close() error {
	if a.api != nil {
		a.api.StopReceivingUpdates()
	}
	return nil
}

func (a *TelegramAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  platformTelegram,
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = "bot=" + a.botName
	}
	return s
}
