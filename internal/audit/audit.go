package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Risk levels attached to audit entries.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Entry is one append-only audit record.
type Entry struct {
	ID        string
	UserID    string // empty when the actor is unknown (e.g. blocked IP)
	Action    string
	RiskLevel string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Repository persists audit entries.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	CountHighRiskSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Sink records audit events fire-and-forget: persistence failures are logged
// and never surfaced to the calling operation.
type Sink struct {
	repo   Repository
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewSink builds an audit sink.
func NewSink(repo Repository, logger *slog.Logger) *Sink {
	return &Sink{repo: repo, logger: logger, nowFn: func() time.Time { return time.Now().UTC() }}
}

// Log appends an entry with the given action, actor and risk level.
func (s *Sink) Log(ctx context.Context, action, userID, riskLevel string, metadata map[string]any) {
	entry := Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		RiskLevel: riskLevel,
		Metadata:  metadata,
		CreatedAt: s.nowFn(),
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("audit append failed", "action", action, "user_id", userID, "error", err)
	}
}

// Suspicious records a high-risk activity entry.
func (s *Sink) Suspicious(ctx context.Context, userID, description string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["description"] = description
	s.Log(ctx, "suspicious_activity", userID, RiskHigh, metadata)
}

// Transaction records a completed money movement.
func (s *Sink) Transaction(ctx context.Context, userID, transactionID, txType string, amount decimal.Decimal) {
	s.Log(ctx, "transaction."+txType, userID, RiskLow, map[string]any{
		"transaction_id": transactionID,
		"amount":         amount.StringFixed(2),
	})
}

// APIAccess records a merchant API call, keyed so rate limiting can count it.
func (s *Sink) APIAccess(ctx context.Context, merchantID, endpoint, method string) {
	s.Log(ctx, "api_access", merchantID, RiskLow, map[string]any{
		"endpoint": endpoint,
		"method":   method,
	})
}

// HighRiskCount returns high/critical entries for a user since the cutoff.
func (s *Sink) HighRiskCount(ctx context.Context, userID string, since time.Time) (int, error) {
	return s.repo.CountHighRiskSince(ctx, userID, since)
}
