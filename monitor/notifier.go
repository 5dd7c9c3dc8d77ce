package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hazyhaar/vigil/notify"
)

// NotifierFromConfig assembles the configured delivery backends into one
// fan-out Notifier. Callers should Close it after Run returns.
func NotifierFromConfig(cfgs []NotifyConfig, logger *slog.Logger) (*RoutedNotifier, error) {
	var backends []notify.Notifier
	for _, nc := range cfgs {
		switch nc.Type {
		case "stdout":
			backends = append(backends, notify.NewStdout(os.Stdout))
		case "webhook":
			if nc.URL == "" {
				return nil, fmt.Errorf("%w: webhook notifier requires a url", ErrInvalidInput)
			}
			var opts []notify.WebhookOption
			if nc.Token != "" {
				opts = append(opts, notify.WithWebhookToken(nc.Token))
			}
			backends = append(backends, notify.NewWebhook(nc.URL, opts...))
		default:
			return nil, fmt.Errorf("%w: unknown notifier type %q", ErrInvalidInput, nc.Type)
		}
	}
	return &RoutedNotifier{router: notify.NewRouter(logger, backends...)}, nil
}

// RoutedNotifier bridges change events onto the notify fan-out. Delivery
// retries are owned by the pipeline, so a failed backend surfaces as an
// error here and the event stays redrivable.
type RoutedNotifier struct {
	router *notify.Router
}

func (r *RoutedNotifier) Notify(ctx context.Context, ev *Event) error {
	return r.router.Notify(ctx, ev)
}

func (r *RoutedNotifier) Close() error { return r.router.Close() }
