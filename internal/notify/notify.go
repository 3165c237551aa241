// Package notify delivers run summaries to humans.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier sends a plain-text message.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// NotifierFunc adapts a function to the Notifier interface (useful for tests).
type NotifierFunc func(ctx context.Context, subject, body string) error

func (f NotifierFunc) Send(ctx context.Context, subject, body string) error {
	if f == nil {
		return nil
	}
	return f(ctx, subject, body)
}

// LogNotifier writes summaries to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(_ context.Context, subject, body string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("summary", "component", "notify", "subject", subject, "body", body)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
