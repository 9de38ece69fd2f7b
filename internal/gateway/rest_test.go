package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoHandler answers every message through the gateway and copies it to a
// second REST conversation.
type echoHandler struct {
	gw *Gateway
}

func (e *echoHandler) OnText(ctx context.Context, msg *TextMessage) {
	e.gw.SendReaction(ctx, msg.Conversation, msg.MessageID, ReactionLike)
	e.gw.SendText(ctx, msg.Conversation, "echo: "+msg.Text)
	e.gw.SendText(ctx, Conversation{Platform: platformREST, ChannelID: "inbox"}, "copy: "+msg.Text)
}

func (e *echoHandler) OnConnectionRequest(ctx context.Context, req *ConnectionRequest) {
	e.gw.AcceptConnection(ctx, req.Conversation, req.RequesterID)
	e.gw.SendText(ctx, req.Conversation, "welcome")
}

func newRESTServer(t *testing.T) *httptest.Server {
	t.Helper()
	gw := NewGateway(zap.NewNop())
	rest := NewRESTAdapter(zap.NewNop())
	gw.Register(rest)
	gw.SetHandler(&echoHandler{gw: gw})

	ts := httptest.NewServer(rest.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestRESTMessageReturnsReplies(t *testing.T) {
	ts := newRESTServer(t)

	resp := post(t, ts, "/message", map[string]string{
		"conversation_id": "conv-1",
		"message_id":      "m-1",
		"user_id":         "u1",
		"content":         "hello",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out RESTResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "conv-1", out.ConversationID)
	require.Len(t, out.Replies, 2)
	assert.Equal(t, "reaction", out.Replies[0].Type)
	assert.Equal(t, "m-1", out.Replies[0].MessageID)
	assert.Equal(t, "like", out.Replies[0].Reaction)
	assert.Equal(t, "text", out.Replies[1].Type)
	assert.Equal(t, "echo: hello", out.Replies[1].Body)
}

func TestRESTMessageGeneratesIDs(t *testing.T) {
	ts := newRESTServer(t)

	resp := post(t, ts, "/message", map[string]string{"content": "hi"})
	defer resp.Body.Close()

	var out RESTResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.ConversationID)
	assert.NotEmpty(t, out.MessageID)
}

func TestRESTMessageValidation(t *testing.T) {
	ts := newRESTServer(t)

	resp := post(t, ts, "/message", map[string]string{"user_id": "u1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRESTMailbox(t *testing.T) {
	ts := newRESTServer(t)

	for _, text := range []string{"one", "two"} {
		resp := post(t, ts, "/message", map[string]string{"conversation_id": "c", "content": text})
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/mailbox/inbox")
	require.NoError(t, err)
	var box []RESTOutbound
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&box))
	resp.Body.Close()
	require.Len(t, box, 2)
	assert.Equal(t, "copy: one", box[0].Body)
	assert.Equal(t, "copy: two", box[1].Body)

	resp, err = http.Get(ts.URL + "/mailbox/inbox")
	require.NoError(t, err)
	box = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&box))
	resp.Body.Close()
	assert.Empty(t, box)
}

func TestRESTConnect(t *testing.T) {
	ts := newRESTServer(t)

	resp := post(t, ts, "/connect", map[string]string{"conversation_id": "new", "user_id": "u9"})
	defer resp.Body.Close()

	var out RESTResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "new", out.ConversationID)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, "welcome", out.Replies[0].Body)
}

func TestRESTMailboxLimit(t *testing.T) {
	a := NewRESTAdapter(zap.NewNop())
	for i := 0; i < mailboxLimit+5; i++ {
		require.NoError(t, a.SendText(context.Background(), "x", "msg"))
	}
	assert.Len(t, a.Drain("x"), mailboxLimit)
	assert.Empty(t, a.Drain("x"))
}
