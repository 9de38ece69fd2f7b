// Package pending records which conversations owe the bot a command argument.
package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Request is a command waiting for its argument.
type Request struct {
	Command   string    `json:"command"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry pairs a request with its conversation key.
type Entry struct {
	Conversation string `json:"conversation"`
	Request
}

// Tracker maps conversation keys to at most one pending request.
// Requests never expire unless a TTL is configured.
type Tracker struct {
	mu       sync.Mutex
	requests map[string]Request
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL drops requests older than ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) { t.ttl = ttl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		requests: make(map[string]Request),
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Get returns the pending request for a conversation.
func (t *Tracker) Get(conv string) (Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[conv]
	if !ok {
		return Request{}, false
	}
	if t.expired(req, t.now()) {
		delete(t.requests, conv)
		t.logger.Debug("pending request expired",
			zap.String("conversation", conv), zap.String("command", req.Command))
		return Request{}, false
	}
	return req, true
}

// Set records that conv is awaiting an argument for command, replacing any
// previous request.
func (t *Tracker) Set(conv, command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests[conv] = Request{Command: command, CreatedAt: t.now()}
}

// Clear forgets the pending request for conv, if any.
func (t *Tracker) Clear(conv string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.requests, conv)
}

// Len returns the number of pending requests, expired ones included until
// they are swept.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Snapshot lists live pending requests ordered by conversation key.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]Entry, 0, len(t.requests))
	for conv, req := range t.requests {
		if t.expired(req, now) {
			continue
		}
		out = append(out, Entry{Conversation: conv, Request: req})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Conversation < out[j].Conversation
	})
	return out
}

// Sweep removes expired requests and returns how many were dropped.
func (t *Tracker) Sweep() int {
	if t.ttl <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	dropped := 0
	for conv, req := range t.requests {
		if t.expired(req, now) {
			delete(t.requests, conv)
			dropped++
		}
	}
	return dropped
}

// Run sweeps expired requests every interval until ctx is cancelled.
// It returns immediately when no TTL is configured.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if t.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Info("swept expired pending requests", zap.Int("count", n))
			}
		}
	}
}

func (t *Tracker) expired(req Request, now time.Time) bool {
	return t.ttl > 0 && now.Sub(req.CreatedAt) > t.ttl
}
