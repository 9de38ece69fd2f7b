package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	platform  string
	handler   EventHandler
	texts     []string
	reactions []string
	accepted  []string
	closed    bool
	mu        sync.Mutex
}

func (f *fakeAdapter) Platform() string              { return f.platform }
func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) OnEvent(h EventHandler)        { f.handler = h }
func (f *fakeAdapter) Close() error                  { f.closed = true; return nil }
func (f *fakeAdapter) AcceptConnection(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, id)
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, channelID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, channelID+"|"+body)
	return nil
}

func (f *fakeAdapter) SendReaction(_ context.Context, channelID, messageID string, kind ReactionKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, channelID+"|"+messageID+"|"+string(kind))
	return nil
}

// slowHandler records the maximum number of concurrently running handlers.
type slowHandler struct {
	running int32
	max     int32
	texts   int32
	conns   int32
}

func (s *slowHandler) enter() {
	n := atomic.AddInt32(&s.running, 1)
	for {
		m := atomic.LoadInt32(&s.max)
		if n <= m || atomic.CompareAndSwapInt32(&s.max, m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(&s.running, -1)
}

func (s *slowHandler) OnText(context.Context, *TextMessage) {
	s.enter()
	atomic.AddInt32(&s.texts, 1)
}

func (s *slowHandler) OnConnectionRequest(context.Context, *ConnectionRequest) {
	s.enter()
	atomic.AddInt32(&s.conns, 1)
}

func TestGatewaySerializesDispatch(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	h := &slowHandler{}
	gw.SetHandler(h)

	a := &fakeAdapter{platform: "fake"}
	gw.Register(a)
	require.NotNil(t, a.handler)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				a.handler.OnText(context.Background(), &TextMessage{Text: "/help"})
			} else {
				a.handler.OnConnectionRequest(context.Background(), &ConnectionRequest{})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&h.max))
	assert.Equal(t, int32(10), h.texts)
	assert.Equal(t, int32(10), h.conns)
}

func TestGatewayRoutesByPlatform(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	slack := &fakeAdapter{platform: "slack"}
	discord := &fakeAdapter{platform: "discord"}
	gw.Register(slack)
	gw.Register(discord)

	ctx := context.Background()
	require.NoError(t, gw.SendText(ctx, Conversation{Platform: "discord", ChannelID: "c1"}, "hi"))
	require.NoError(t, gw.SendReaction(ctx, Conversation{Platform: "slack", ChannelID: "c2"}, "m1", ReactionLike))
	require.NoError(t, gw.AcceptConnection(ctx, Conversation{Platform: "slack", ChannelID: "c2"}, "u1"))

	assert.Equal(t, []string{"c1|hi"}, discord.texts)
	assert.Empty(t, slack.texts)
	assert.Equal(t, []string{"c2|m1|like"}, slack.reactions)
	assert.Equal(t, []string{"u1"}, slack.accepted)

	err := gw.SendText(ctx, Conversation{Platform: "irc", ChannelID: "x"}, "hi")
	assert.Error(t, err)

	assert.Equal(t, []string{"discord", "slack"}, gw.Adapters())
	status := gw.StatusAll()
	require.Len(t, status, 2)
	assert.Equal(t, "discord", status[0].Platform)
	assert.True(t, status[0].Connected)

	require.NoError(t, gw.Close())
	assert.True(t, slack.closed)
	assert.True(t, discord.closed)
}

func TestGatewayWithoutHandlerDropsEvents(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	a := &fakeAdapter{platform: "fake"}
	gw.Register(a)

	// Must not panic.
	a.handler.OnText(context.Background(), &TextMessage{Text: "hello"})
	a.handler.OnConnectionRequest(context.Background(), &ConnectionRequest{})
}

func TestParseConversation(t *testing.T) {
	c, err := ParseConversation("slack:C123")
	require.NoError(t, err)
	assert.Equal(t, Conversation{Platform: "slack", ChannelID: "C123"}, c)
	assert.Equal(t, "slack:C123", c.Key())

	c, err = ParseConversation("rest:a:b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", c.ChannelID)

	for _, bad := range []string{"", "slack", ":C1", "slack:"} {
		_, err := ParseConversation(bad)
		assert.Error(t, err, bad)
	}
	assert.True(t, Conversation{}.IsZero())
}

func TestTelegramMemberStatus(t *testing.T) {
	assert.Equal(t, ConnectionAccepted, telegramMemberStatus("member"))
	assert.Equal(t, ConnectionAccepted, telegramMemberStatus("administrator"))
	assert.Equal(t, ConnectionCancelled, telegramMemberStatus("kicked"))
	assert.Equal(t, ConnectionCancelled, telegramMemberStatus("left"))
	assert.Equal(t, ConnectionPending, telegramMemberStatus("restricted"))
}
