// Package dispatch decides how the bot answers each message: it parses the
// text, consults the pending-input tracker and runs command handlers.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/weatherbot/internal/command"
	"github.com/nidhogg/weatherbot/internal/gateway"
	"github.com/nidhogg/weatherbot/internal/metrics"
	"github.com/nidhogg/weatherbot/internal/pending"
	"github.com/nidhogg/weatherbot/internal/store"
	"github.com/nidhogg/weatherbot/internal/weather"
	"go.uber.org/zap"
)

const (
	msgUnknownCommand = `Sorry, I don't know the command "%s" yet.`
	msgNotImplemented = `Sorry, "%s" is not implemented yet.`

	helpTemplate = "**Hello!** 😎 This is weather bot v%s speaking.\n\n" +
		"Available commands:\n%s\n\n" +
		"More information about this bot: %s"
)

// Invocation is a command call with its resolved argument.
type Invocation struct {
	Command  string
	Argument string
	Message  *gateway.TextMessage
}

// Result is what a command produced.
type Result struct {
	Body  string
	Relay []Outbound
}

// Handler implements one command.
type Handler struct {
	// Question is asked when the command needs an argument and got none.
	Question string
	// Gate reports whether the command can run at all. A closed gate replies
	// with reason and never waits for an argument. Nil means always open.
	Gate func() (reason string, open bool)
	Run  func(ctx context.Context, inv Invocation) Result
}

// FeedbackArchive persists feedback messages.
type FeedbackArchive interface {
	SaveFeedback(ctx context.Context, fb *store.Feedback) error
}

// Config holds the engine's collaborators and settings.
type Config struct {
	Registry *command.Registry
	Tracker  *pending.Tracker
	Provider weather.Provider
	// FeedbackConversation receives /feedback relays. Zero disables /feedback.
	FeedbackConversation gateway.Conversation
	Archive              FeedbackArchive
	Version              string
	ProjectURL           string
	// ReplyUnknownCommands answers unknown commands typed with no pending
	// request instead of ignoring them.
	ReplyUnknownCommands bool
	// Uptime overrides the process uptime source.
	Uptime func() time.Duration
}

// Engine is the per-conversation command state machine.
type Engine struct {
	registry     *command.Registry
	tracker      *pending.Tracker
	handlers     map[string]Handler
	helpText     string
	replyUnknown bool
	logger       *zap.Logger
}

// NewEngine creates an engine with the built-in command handlers.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = command.DefaultRegistry()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = pending.NewTracker(logger)
	}
	if cfg.Uptime == nil {
		cfg.Uptime = processUptime(time.Now())
	}

	e := &Engine{
		registry:     cfg.Registry,
		tracker:      cfg.Tracker,
		handlers:     make(map[string]Handler),
		helpText:     fmt.Sprintf(helpTemplate, cfg.Version, cfg.Registry.HelpLines(), cfg.ProjectURL),
		replyUnknown: cfg.ReplyUnknownCommands,
		logger:       logger,
	}
	e.registerBuiltins(cfg)
	return e
}

// Handle installs or replaces the handler for a registered command.
func (e *Engine) Handle(name string, h Handler) {
	e.handlers[strings.ToLower(name)] = h
}

// HelpText returns the onboarding and /help text.
func (e *Engine) HelpText() string {
	return e.helpText
}

// Registry returns the command registry the engine parses against.
func (e *Engine) Registry() *command.Registry {
	return e.registry
}

// Tracker returns the engine's pending-input tracker.
func (e *Engine) Tracker() *pending.Tracker {
	return e.tracker
}

// HandleText processes one message and returns the action to perform.
// Tracker updates happen before the handler runs, so a slow provider call
// cannot reorder state for the conversation.
func (e *Engine) HandleText(ctx context.Context, msg *gateway.TextMessage) Action {
	parsed := command.Parse(e.registry, msg.Text)
	metrics.MessagesTotal.WithLabelValues(parsed.Kind.String()).Inc()
	conv := msg.Conversation.Key()
	defer func() { metrics.PendingRequests.Set(float64(e.tracker.Len())) }()

	switch parsed.Kind {
	case command.KindNotACommand, command.KindUnknown:
		req, waiting := e.tracker.Get(conv)
		if !waiting {
			if parsed.Kind == command.KindUnknown {
				e.logger.Info("unknown command",
					zap.String("conversation", conv),
					zap.String("token", parsed.Token))
				if e.replyUnknown {
					return Action{
						Kind:         ActionSendText,
						Conversation: msg.Conversation,
						MessageID:    msg.MessageID,
						Body:         fmt.Sprintf(msgUnknownCommand, parsed.Raw),
					}
				}
			}
			return noAction()
		}

		arg := parsed.Trailing
		if parsed.Kind == command.KindUnknown {
			arg = parsed.Raw
		}
		arg = strings.TrimSpace(arg)
		if arg == "" {
			// A blank answer leaves the question open.
			if h, ok := e.handlers[req.Command]; ok && h.Question != "" {
				return reply(msg, h.Question, nil)
			}
			return noAction()
		}

		e.tracker.Clear(conv)
		e.logger.Debug("pending request satisfied",
			zap.String("conversation", conv),
			zap.String("command", req.Command))
		return e.execute(ctx, msg, req.Command, arg)

	case command.KindRecognized:
		def, _ := e.registry.Resolve(parsed.Name)
		h, implemented := e.handlers[def.Name]
		if !implemented {
			e.tracker.Clear(conv)
			return reply(msg, fmt.Sprintf(msgNotImplemented, def.Name), nil)
		}
		if reason, open := gateOpen(h); !open {
			e.tracker.Clear(conv)
			return reply(msg, reason, nil)
		}
		if def.TakesArgument && parsed.Trailing == "" {
			e.tracker.Set(conv, def.Name)
			return reply(msg, h.Question, nil)
		}
		e.tracker.Clear(conv)
		return e.execute(ctx, msg, def.Name, parsed.Trailing)
	}

	e.logger.Error("unhandled parse kind", zap.Stringer("kind", parsed.Kind))
	return noAction()
}

func gateOpen(h Handler) (string, bool) {
	if h.Gate == nil {
		return "", true
	}
	return h.Gate()
}

func (e *Engine) execute(ctx context.Context, msg *gateway.TextMessage, name, arg string) Action {
	h, ok := e.handlers[name]
	if !ok || h.Run == nil {
		return reply(msg, fmt.Sprintf(msgNotImplemented, name), nil)
	}
	if reason, open := gateOpen(h); !open {
		return reply(msg, reason, nil)
	}

	metrics.CommandsTotal.WithLabelValues(name).Inc()
	e.logger.Debug("executing command",
		zap.String("command", name),
		zap.String("conversation", msg.Conversation.Key()))
	res := h.Run(ctx, Invocation{Command: name, Argument: arg, Message: msg})
	return reply(msg, res.Body, res.Relay)
}
