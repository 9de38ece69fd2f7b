package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	platformREST = "rest"

	// mailboxLimit bounds undelivered output kept per conversation.
	mailboxLimit = 100
)

// RESTOutbound is one item of bot output delivered over HTTP.
type RESTOutbound struct {
	Type      string    `json:"type"` // "text" or "reaction"
	Body      string    `json:"body,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Reaction  string    `json:"reaction,omitempty"`
	At        time.Time `json:"at"`
}

// RESTResponse is returned by the message and connect endpoints.
type RESTResponse struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id,omitempty"`
	Replies        []RESTOutbound `json:"replies"`
}

// RESTAdapter implements Adapter for HTTP-based message ingestion. Each
// request is handled synchronously: output addressed to the request's
// conversation is returned in the response body, output addressed to other
// REST conversations waits in a mailbox until polled.
type RESTAdapter struct {
	handler EventHandler
	active  map[string]*[]RESTOutbound
	mailbox map[string][]RESTOutbound
	mu      sync.Mutex
	request sync.Mutex
	logger  *zap.Logger
}

// NewRESTAdapter creates a REST gateway adapter.
func NewRESTAdapter(logger *zap.Logger) *RESTAdapter {
	return &RESTAdapter{
		active:  make(map[string]*[]RESTOutbound),
		mailbox: make(map[string][]RESTOutbound),
		logger:  logger,
	}
}

func (a *RESTAdapter) Platform() string { return platformREST }

func (a *RESTAdapter) Connect(_ context.Context) error { return nil }

func (a *RESTAdapter) OnEvent(h EventHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

func (a *RESTAdapter) Close() error { return nil }

func (a *RESTAdapter) deliver(channelID string, out RESTOutbound) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok := a.active[channelID]; ok {
		*buf = append(*buf, out)
		return
	}
	box := append(a.mailbox[channelID], out)
	if len(box) > mailboxLimit {
		box = box[len(box)-mailboxLimit:]
	}
	a.mailbox[channelID] = box
}

// SendText records a text reply for the conversation.
func (a *RESTAdapter) SendText(_ context.Context, channelID, body string) error {
	a.deliver(channelID, RESTOutbound{Type: "text", Body: body, At: time.Now()})
	return nil
}

// SendReaction records a reaction to an earlier message.
func (a *RESTAdapter) SendReaction(_ context.Context, channelID, messageID string, kind ReactionKind) error {
	a.deliver(channelID, RESTOutbound{
		Type:      "reaction",
		MessageID: messageID,
		Reaction:  string(kind),
		At:        time.Now(),
	})
	return nil
}

// AcceptConnection is a no-op: REST clients are implicitly connected.
func (a *RESTAdapter) AcceptConnection(context.Context, string) error {
	return nil
}

// Drain removes and returns the mailbox of a conversation.
func (a *RESTAdapter) Drain(channelID string) []RESTOutbound {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.mailbox[channelID]
	delete(a.mailbox, channelID)
	if out == nil {
		out = []RESTOutbound{}
	}
	return out
}

// capture runs fn while collecting output addressed to channelID.
func (a *RESTAdapter) capture(channelID string, fn func(h EventHandler)) []RESTOutbound {
	a.request.Lock()
	defer a.request.Unlock()

	buf := []RESTOutbound{}
	a.mu.Lock()
	h := a.handler
	a.active[channelID] = &buf
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.active, channelID)
		a.mu.Unlock()
	}()

	if h != nil {
		fn(h)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return buf
}

// Routes returns a chi router with REST gateway endpoints.
func (a *RESTAdapter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", a.handleMessage)
	r.Post("/connect", a.handleConnect)
	r.Get("/mailbox/{conversationID}", a.handleMailbox)
	return r
}

type restMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	Content        string `json:"content"`
}

// handleMessage accepts an inbound message and returns the bot's output.
func (a *RESTAdapter) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req restMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRESTError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeRESTError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}
	if req.MessageID == "" {
		req.MessageID = uuid.New().String()
	}
	if req.UserName == "" {
		req.UserName = req.UserID
	}

	msg := &TextMessage{
		Conversation: Conversation{Platform: platformREST, ChannelID: req.ConversationID},
		SenderID:     req.UserID,
		SenderName:   req.UserName,
		MessageID:    req.MessageID,
		Text:         req.Content,
		Timestamp:    time.Now(),
	}
	replies := a.capture(req.ConversationID, func(h EventHandler) {
		h.OnText(r.Context(), msg)
	})

	a.logger.Debug("rest message handled",
		zap.String("conversation", req.ConversationID),
		zap.Int("replies", len(replies)))
	writeRESTJSON(w, http.StatusOK, RESTResponse{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Replies:        replies,
	})
}

type restConnectRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// handleConnect raises a connection request for a new or existing conversation.
func (a *RESTAdapter) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req restConnectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRESTError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	cr := &ConnectionRequest{
		RequesterID:  req.UserID,
		Conversation: Conversation{Platform: platformREST, ChannelID: req.ConversationID},
		Status:       ConnectionPending,
	}
	replies := a.capture(req.ConversationID, func(h EventHandler) {
		h.OnConnectionRequest(r.Context(), cr)
	})
	writeRESTJSON(w, http.StatusOK, RESTResponse{
		ConversationID: req.ConversationID,
		Replies:        replies,
	})
}

func (a *RESTAdapter) handleMailbox(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	writeRESTJSON(w, http.StatusOK, a.Drain(id))
}

func writeRESTJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRESTError(w http.ResponseWriter, status int, msg string) {
	writeRESTJSON(w, status, map[string]string{"error": msg})
}
