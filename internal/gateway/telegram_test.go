package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTelegramAPI struct {
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []string
	mu       sync.Mutex
}

func newFakeTelegramAPI() *fakeTelegramAPI {
	return &fakeTelegramAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegramAPI) MakeRequest(endpoint string, _ tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, endpoint)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegramAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTelegramAPI) StopReceivingUpdates() {}

type recordingHandler struct {
	texts    []*TextMessage
	requests []*ConnectionRequest
	mu       sync.Mutex
}

func (r *recordingHandler) OnText(_ context.Context, msg *TextMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, msg)
}

func (r *recordingHandler) OnConnectionRequest(_ context.Context, req *ConnectionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recordingHandler) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.texts))
	for i, m := range r.texts {
		out[i] = m.Text
	}
	return out
}

func newTestTelegramAdapter(api TelegramAPI, h EventHandler) *TelegramAdapter {
	a := NewTelegramAdapter("token", zap.NewNop())
	a.api = api
	a.botName = "WeatherBot"
	a.OnEvent(h)
	return a
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: -100123},
		Text:      text,
	}}
}

func TestTelegramStripsOwnMention(t *testing.T) {
	h := &recordingHandler{}
	a := newTestTelegramAdapter(newFakeTelegramAPI(), h)

	for _, text := range []string{
		"/weather@weatherbot Berlin",
		"/forecast@WeatherBot",
		"/weather@otherbot Paris",
		"/weather Rome",
		"hello @weatherbot",
	} {
		a.processUpdate(context.Background(), textUpdate(text))
	}

	assert.Equal(t, []string{
		"/weather Berlin",
		"/forecast",
		"/weather@otherbot Paris",
		"/weather Rome",
		"hello @weatherbot",
	}, h.Texts())

	h.mu.Lock()
	defer h.mu.Unlock()
	msg := h.texts[0]
	assert.Equal(t, Conversation{Platform: "telegram", ChannelID: "-100123"}, msg.Conversation)
	assert.Equal(t, "42", msg.SenderID)
	assert.Equal(t, "alice", msg.SenderName)
	assert.Equal(t, "7", msg.MessageID)
}

func TestTelegramPollDeliversUpdates(t *testing.T) {
	api := newFakeTelegramAPI()
	h := &recordingHandler{}
	a := newTestTelegramAdapter(api, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Connect(ctx))

	api.updates <- textUpdate("/weather@WeatherBot Berlin")
	api.updates <- tgbotapi.Update{MyChatMember: &tgbotapi.ChatMemberUpdated{
		Chat:          tgbotapi.Chat{ID: 55},
		From:          tgbotapi.User{ID: 9},
		NewChatMember: tgbotapi.ChatMember{Status: "member"},
	}}

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.texts) == 1 && len(h.requests) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"/weather Berlin"}, h.Texts())
	h.mu.Lock()
	assert.Equal(t, ConnectionAccepted, h.requests[0].Status)
	assert.Equal(t, "55", h.requests[0].Conversation.ChannelID)
	h.mu.Unlock()
	assert.True(t, a.Status().Connected)
}

func TestTelegramSendTextAndReaction(t *testing.T) {
	api := newFakeTelegramAPI()
	a := newTestTelegramAdapter(api, &recordingHandler{})

	require.NoError(t, a.SendText(context.Background(), "-100123", "hi"))
	require.NoError(t, a.SendReaction(context.Background(), "-100123", "7", ReactionLike))
	assert.Error(t, a.SendText(context.Background(), "not-a-chat", "hi"))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.sent, 1)
	sent, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-100123), sent.ChatID)
	assert.Equal(t, "hi", sent.Text)
	assert.Equal(t, []string{"setMessageReaction"}, api.requests)
}
