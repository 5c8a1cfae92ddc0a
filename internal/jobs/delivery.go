package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSender delivers signed webhook payloads to merchant endpoints.
type WebhookSender struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender builds a sender with a bounded request timeout.
func NewWebhookSender(logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Handle posts the payload body to the merchant URL. Non-2xx responses are
// errors so the worker retries the delivery.
func (s *WebhookSender) Handle(ctx context.Context, job Job) error {
	var p WebhookPayload
	if err := DecodePayload(job, &p); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(p.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", p.Event)
	req.Header.Set("X-Webhook-Signature", p.Signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery to %s: status %d", p.URL, resp.StatusCode)
	}
	s.logger.Debug("webhook delivered", "url", p.URL, "event", p.Event)
	return nil
}

// LogNotifier stands in for the notification and email providers: it writes
// the message to the structured log.
func LogNotifier(logger *slog.Logger, channel string) Handler {
	return func(_ context.Context, job Job) error {
		var p NotificationPayload
		if err := DecodePayload(job, &p); err != nil {
			return err
		}
		logger.Info("notification delivered",
			"channel", channel, "user_id", p.UserID, "subject", p.Subject)
		return nil
	}
}

// RegisterDeliveryHandlers wires the default executors for every job type.
func RegisterDeliveryHandlers(w *Worker, logger *slog.Logger) {
	w.Register(TypeWebhook, NewWebhookSender(logger).Handle)
	w.Register(TypeNotification, LogNotifier(logger, "in_app"))
	w.Register(TypeEmail, LogNotifier(logger, "email"))
}
