package jobs

import "time"

// Job types.
const (
	TypeWebhook      = "webhook.send"
	TypeNotification = "notification.send"
	TypeEmail        = "email.send"
)

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Delivery priorities. Higher runs first.
const (
	PriorityWebhook      = 9
	PriorityEmail        = 8
	PriorityNotification = 7
)

// DefaultMaxAttempts bounds retries before a job is parked as failed.
const DefaultMaxAttempts = 3

// Job is one queued background task. Payload is the JSON-encoded argument
// for the handler registered under Type.
type Job struct {
	ID          string
	Type        string
	Payload     []byte
	Priority    int
	Attempts    int
	MaxAttempts int
	Status      string
	LastError   *string
	ScheduledAt time.Time
	CreatedAt   time.Time
}
