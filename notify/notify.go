// Package notify delivers change events to output backends: stdout JSON
// lines, webhooks, or an in-process fan-out of both.
package notify

import "context"

// Notifier delivers one event payload. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, payload any) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
