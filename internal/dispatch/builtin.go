package dispatch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nidhogg/weatherbot/internal/command"
	"github.com/nidhogg/weatherbot/internal/store"
	"github.com/nidhogg/weatherbot/internal/weather"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const (
	msgProviderFailure  = `Oops. Something went wrong with the weather API: "%s"`
	msgNoFeedbackTarget = "Sorry, the developer did not specify a feedback channel."
	msgFeedbackRelay    = "Feedback from user \"%s\":\n\"%s\""
	msgFeedbackThanks   = "Thank you for your feedback."
)

func (e *Engine) registerBuiltins(cfg Config) {
	e.Handle(command.Help, Handler{
		Run: func(context.Context, Invocation) Result {
			return Result{Body: e.helpText}
		},
	})

	e.Handle(command.Uptime, Handler{
		Run: func(context.Context, Invocation) Result {
			return Result{Body: "Current uptime: " + formatHHMMSS(cfg.Uptime())}
		},
	})

	if cfg.Provider != nil {
		e.Handle(command.Weather, Handler{
			Question: "For which city would you like the weather?",
			Run: func(ctx context.Context, inv Invocation) Result {
				cur, err := cfg.Provider.Current(ctx, inv.Argument)
				if err != nil {
					e.logger.Warn("weather lookup failed",
						zap.String("location", inv.Argument), zap.Error(err))
					return Result{Body: fmt.Sprintf(msgProviderFailure, err)}
				}
				return Result{Body: weather.FormatCurrent(cur)}
			},
		})
		e.Handle(command.Forecast, Handler{
			Question: "For which city would you like the weather forecast?",
			Run: func(ctx context.Context, inv Invocation) Result {
				fc, err := cfg.Provider.Forecast(ctx, inv.Argument)
				if err != nil {
					e.logger.Warn("forecast lookup failed",
						zap.String("location", inv.Argument), zap.Error(err))
					return Result{Body: fmt.Sprintf(msgProviderFailure, err)}
				}
				return Result{Body: weather.FormatForecast(fc)}
			},
		})
	}

	dest := cfg.FeedbackConversation
	archive := cfg.Archive
	if dest.IsZero() {
		e.logger.Warn("no feedback conversation configured; /feedback is disabled")
	}
	e.Handle(command.Feedback, Handler{
		Question: "What would you like to tell the developer?",
		Gate: func() (string, bool) {
			if dest.IsZero() {
				return msgNoFeedbackTarget, false
			}
			return "", true
		},
		Run: func(ctx context.Context, inv Invocation) Result {
			sender := inv.Message.SenderName
			if sender == "" {
				sender = inv.Message.SenderID
			}
			if archive != nil {
				fb := &store.Feedback{
					Conversation: inv.Message.Conversation.Key(),
					SenderID:     inv.Message.SenderID,
					SenderName:   inv.Message.SenderName,
					Text:         inv.Argument,
				}
				if err := archive.SaveFeedback(ctx, fb); err != nil {
					e.logger.Error("archive feedback failed", zap.Error(err))
				}
			}
			return Result{
				Body: msgFeedbackThanks,
				Relay: []Outbound{{
					Conversation: dest,
					Body:         fmt.Sprintf(msgFeedbackRelay, sender, inv.Argument),
				}},
			}
		},
	})
}

// formatHHMMSS renders d as zero-padded hours, minutes and seconds. Hours
// are not wrapped at 24.
func formatHHMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// processUptime measures uptime from the OS process start time, falling back
// to started when the process table cannot be read.
func processUptime(started time.Time) func() time.Duration {
	created := started
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if ms, err := p.CreateTime(); err == nil {
			created = time.UnixMilli(ms)
		}
	}
	return func() time.Duration {
		return time.Since(created)
	}
}
