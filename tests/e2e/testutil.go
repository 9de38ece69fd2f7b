package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/weatherbot/internal/command"
	"github.com/nidhogg/weatherbot/internal/dispatch"
	"github.com/nidhogg/weatherbot/internal/gateway"
	"github.com/nidhogg/weatherbot/internal/pending"
	"github.com/nidhogg/weatherbot/internal/router"
	pgstore "github.com/nidhogg/weatherbot/internal/store"
	"github.com/nidhogg/weatherbot/internal/weather"
)

// Package-level shared state, set by TestMain.
var (
	testLogger   *zap.Logger
	testPGStore  *pgstore.Store
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("weatherbot_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// fakeOWM serves canned OpenWeatherMap answers and counts requests.
type fakeOWM struct {
	server   *httptest.Server
	requests int32
}

func newFakeOWM(t *testing.T) *fakeOWM {
	t.Helper()
	f := &fakeOWM{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.requests, 1)
		city := r.URL.Query().Get("q")
		if strings.EqualFold(city, "atlantis") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"cod":"404","message":"city not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/weather":
			fmt.Fprintf(w, `{"name":%q,"sys":{"country":"XX"},"weather":[{"id":800,"description":"clear sky"}],"main":{"temp":18.6}}`, city)
		case "/forecast":
			fmt.Fprintf(w, `{"city":{"name":%q,"country":"XX"},"list":[
				{"dt_txt":"2024-06-03 09:00:00","main":{"temp_min":11,"temp_max":16},"weather":[{"id":500,"description":"light rain"}]},
				{"dt_txt":"2024-06-03 12:00:00","main":{"temp_min":14,"temp_max":18},"weather":[{"id":500,"description":"light rain"}]},
				{"dt_txt":"2024-06-04 09:00:00","main":{"temp_min":13,"temp_max":13},"weather":[{"id":801,"description":"few clouds"}]}
			]}`, city)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOWM) Requests() int {
	return int(atomic.LoadInt32(&f.requests))
}

func (f *fakeOWM) Client() *weather.OWMClient {
	return weather.NewOWMClient(weather.Config{
		APIKey:   "test-key",
		Endpoint: f.server.URL,
		Timeout:  5 * time.Second,
	}, testLogger)
}

// CaptureAdapter is a test gateway adapter that records all outbound traffic.
type CaptureAdapter struct {
	sent      []string
	reactions []string
	handler   gateway.EventHandler
	mu        sync.Mutex
}

func (c *CaptureAdapter) Platform() string { return "test" }
func (c *CaptureAdapter) Connect(context.Context) error { return nil }
func (c *CaptureAdapter) OnEvent(h gateway.EventHandler) { c.handler = h }
func (c *CaptureAdapter) Close() error { return nil }
func (c *CaptureAdapter) AcceptConnection(context.Context, string) error { return nil }

func (c *CaptureAdapter) SendText(_ context.Context, channelID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, channelID+": "+body)
	return nil
}

func (c *CaptureAdapter) SendReaction(_ context.Context, channelID, messageID string, kind gateway.ReactionKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, channelID+"/"+messageID)
	return nil
}

// Say simulates an inbound message from a user in channel.
func (c *CaptureAdapter) Say(channel, text string) {
	c.handler.OnText(context.Background(), &gateway.TextMessage{
		Conversation: gateway.Conversation{Platform: "test", ChannelID: channel},
		SenderID:     "u-" + channel,
		SenderName:   "tester",
		MessageID:    fmt.Sprintf("%s-%d", channel, time.Now().UnixNano()),
		Text:         text,
		Timestamp:    time.Now(),
	})
}

// Sent returns a copy of all captured outbound texts.
func (c *CaptureAdapter) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.sent))
	copy(cp, c.sent)
	return cp
}

// Last returns the most recent outbound text.
func (c *CaptureAdapter) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

// Reset clears captured traffic.
func (c *CaptureAdapter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
	c.reactions = nil
}

// setupBot wires provider, engine, router and gateway around a CaptureAdapter.
func setupBot(t *testing.T, provider weather.Provider, archive dispatch.FeedbackArchive) (*CaptureAdapter, *dispatch.Engine) {
	t.Helper()

	engine := dispatch.NewEngine(dispatch.Config{
		Registry:             command.DefaultRegistry(),
		Tracker:              pending.NewTracker(testLogger),
		Provider:             provider,
		FeedbackConversation: gateway.Conversation{Platform: "test", ChannelID: "dev"},
		Archive:              archive,
		Version:              "e2e",
		ProjectURL:           "https://example.com",
	}, testLogger)

	gw := gateway.NewGateway(testLogger)
	capture := &CaptureAdapter{}
	gw.SetHandler(router.New(engine, gw, testLogger))
	gw.Register(capture)

	return capture, engine
}
