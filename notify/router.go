package notify

import (
	"context"
	"log/slog"
)

// Router fans out events to all configured notifiers. One notifier error
// does not block the others; the first encountered is returned so the
// caller can schedule a redelivery.
type Router struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewRouter creates a fan-out router delivering to all notifiers.
func NewRouter(logger *slog.Logger, notifiers ...Notifier) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{notifiers: notifiers, logger: logger}
}

func (r *Router) Notify(ctx context.Context, payload any) error {
	var firstErr error
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, payload); err != nil {
			r.logger.Warn("notify: delivery failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, n := range r.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
