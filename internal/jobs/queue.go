// Package jobs is the background delivery queue: webhooks, notifications and
// email leave the request path through it. Jobs retry with a delay until
// their attempt budget runs out.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Queue accepts background work. Money-moving services depend on this
// interface so tests can capture dispatches.
type Queue interface {
	Dispatch(ctx context.Context, jobType string, payload any, priority int) error
}

// Service implements Queue on a repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewService creates a job queue.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, nowFn: func() time.Time { return time.Now().UTC() }}
}

// Dispatch enqueues a job for the worker. The payload must be JSON-encodable.
func (s *Service) Dispatch(ctx context.Context, jobType string, payload any, priority int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	now := s.nowFn()
	job := Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     body,
		Priority:    priority,
		MaxAttempts: DefaultMaxAttempts,
		Status:      StatusPending,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	if err := s.repo.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	s.logger.Debug("job dispatched", "job_id", job.ID, "type", jobType, "priority", priority)
	return nil
}

// DecodePayload unpacks a job's JSON payload into dst.
func DecodePayload(j Job, dst any) error {
	return json.Unmarshal(j.Payload, dst)
}

// WebhookPayload is the argument for webhook delivery jobs.
type WebhookPayload struct {
	URL       string          `json:"url"`
	Event     string          `json:"event"`
	Body      json.RawMessage `json:"body"`
	Signature string          `json:"signature"`
}

// NotificationPayload is the argument for in-app notification jobs.
type NotificationPayload struct {
	UserID  string `json:"user_id"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// DispatchWebhook queues a signed webhook delivery.
func DispatchWebhook(ctx context.Context, q Queue, p WebhookPayload) error {
	return q.Dispatch(ctx, TypeWebhook, p, PriorityWebhook)
}

// DispatchNotification queues an in-app notification.
func DispatchNotification(ctx context.Context, q Queue, p NotificationPayload) error {
	return q.Dispatch(ctx, TypeNotification, p, PriorityNotification)
}

// DispatchEmail queues an email delivery.
func DispatchEmail(ctx context.Context, q Queue, p NotificationPayload) error {
	return q.Dispatch(ctx, TypeEmail, p, PriorityEmail)
}
