package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook POSTs events as JSON to a URL. Delivery retries are owned by the
// caller, so a single Notify performs exactly one request.
type Webhook struct {
	url    string
	token  string
	client *http.Client
}

// WebhookOption configures a Webhook notifier.
type WebhookOption func(*Webhook)

// WithWebhookToken sets a bearer token sent with each request.
func WithWebhookToken(token string) WebhookOption {
	return func(w *Webhook) { w.token = token }
}

// WithWebhookTimeout sets the per-request timeout. Default: 10s.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.Timeout = d }
}

// NewWebhook creates a Webhook notifier targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Notify(ctx context.Context, payload any) error {
	body, err := json.Marshal(envelope{Type: "change", Data: payload})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error { return nil }
