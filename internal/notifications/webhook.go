// Package notifications delivers purchase notifications to an operator
// webhook. Delivery is best-effort: a failed notification never blocks or
// fails order processing.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"shopbridge/internal/config"
	"shopbridge/internal/types"
)

// maxResponseBodyRead limits how much of a response body is read for error
// messages.
const maxResponseBodyRead = 4096

// Template placeholders substituted into the notification text.
const (
	placeholderPackage = "%package%"
	placeholderOrderID = "%order_id%"
)

// Compile-time assertion that WebhookSink implements types.NotificationSink.
var _ types.NotificationSink = (*WebhookSink)(nil)

// WebhookSink posts a Slack-compatible {"text": ...} message to a configured
// webhook for each processed purchase.
type WebhookSink struct {
	url        string
	template   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookSink creates a sink for the configured webhook. Returns nil when
// no webhook URL is configured; callers treat a nil sink as disabled.
func NewWebhookSink(cfg config.NotificationConfig, logger *slog.Logger) *WebhookSink {
	if cfg.WebhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSink{
		url:        cfg.WebhookURL,
		template:   cfg.Template,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// NewWebhookSinkWithClient creates a sink with a caller-supplied HTTP client.
// This constructor exists for testing.
func NewWebhookSinkWithClient(cfg config.NotificationConfig, httpClient *http.Client, logger *slog.Logger) *WebhookSink {
	sink := NewWebhookSink(cfg, logger)
	if sink != nil {
		sink.httpClient = httpClient
	}
	return sink
}

// Notify renders the configured template for the order and posts it.
func (w *WebhookSink) Notify(ctx context.Context, order types.ResolvedOrder) error {
	payload, err := json.Marshal(map[string]string{
		"text": w.render(order),
	})
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	w.logger.DebugContext(ctx, "purchase notification delivered",
		"external_order_id", order.ExternalOrderID,
		"item", order.ItemName,
	)
	return nil
}

// render substitutes the order fields into the template. The identity keeps
// any account-variant prefix so operators see exactly what was targeted.
func (w *WebhookSink) render(order types.ResolvedOrder) string {
	text := strings.ReplaceAll(w.template, types.PlayerPlaceholder, order.AccountIdentity)
	text = strings.ReplaceAll(text, placeholderPackage, order.ItemName)
	text = strings.ReplaceAll(text, placeholderOrderID, order.ExternalOrderID)
	return text
}
