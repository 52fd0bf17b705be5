// Package notification delivers emitted signals to external channels
// (webhooks, Telegram). Delivery is best effort: a failed channel never
// blocks or fails the scan path.
package notification

import (
	"context"
	"log/slog"

	"scanner-systemv1/internal/model"
)

// Notifier is one outbound delivery channel for signals.
type Notifier interface {
	Notify(ctx context.Context, sig *model.Signal) error
}

// Multi fans a signal out to every configured channel, logging failures
// per channel instead of aborting.
type Multi struct {
	channels []Notifier
}

func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: channels}
}

// Len reports the number of configured channels.
func (m *Multi) Len() int { return len(m.channels) }

func (m *Multi) Notify(ctx context.Context, sig *model.Signal) error {
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, sig); err != nil {
			slog.Warn("[notify] delivery failed",
				"ticker", sig.Ticker, "pattern", sig.Pattern, "err", err)
		}
	}
	return nil
}
