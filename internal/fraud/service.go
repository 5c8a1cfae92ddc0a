package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/audit"
	"github.com/atlas-pay/atlas_pay/internal/identity"
)

// Service evaluates fraud rules.
type Service struct {
	stats  TransactionStats
	users  identity.Repository
	audit  *audit.Sink
	cache  *redis.Client
	limits Limits
	nowFn  func() time.Time
}

// NewService creates a fraud service.
func NewService(stats TransactionStats, users identity.Repository, sink *audit.Sink, cache *redis.Client, limits Limits) *Service {
	return &Service{
		stats:  stats,
		users:  users,
		audit:  sink,
		cache:  cache,
		limits: limits,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// TransferInput describes a prospective transfer for rule evaluation.
type TransferInput struct {
	UserID      string
	RecipientID string
	Amount      decimal.Decimal
}

// CheckTransfer runs every transfer rule in order of severity. The first
// failing rule decides; an off-hours high-value transfer is allowed but
// flagged.
func (s *Service) CheckTransfer(ctx context.Context, input TransferInput) (Decision, error) {
	now := s.nowFn()

	// Single-transaction ceiling.
	if s.limits.MaxSingleTransfer.GreaterThan(decimal.Zero) && input.Amount.GreaterThan(s.limits.MaxSingleTransfer) {
		return deny("single transfer limit exceeded", audit.RiskHigh), nil
	}

	// Velocity: bursts of transfers in under a minute.
	recent, err := s.stats.CountSince(ctx, input.UserID, now.Add(-time.Minute))
	if err != nil {
		return Decision{}, fmt.Errorf("count recent transfers: %w", err)
	}
	if recent >= maxTransfersPerMinute {
		s.audit.Suspicious(ctx, input.UserID, "transfer velocity exceeded", map[string]any{
			"count_last_minute": recent,
		})
		return deny("too many transfers in a short period", audit.RiskCritical), nil
	}

	// Daily outgoing volume.
	if s.limits.DailyTransferLimit.GreaterThan(decimal.Zero) {
		daily, err := s.stats.DailyOutgoingSum(ctx, input.UserID, now)
		if err != nil {
			return Decision{}, fmt.Errorf("daily outgoing sum: %w", err)
		}
		if daily.Add(input.Amount).GreaterThan(s.limits.DailyTransferLimit) {
			return deny("daily transfer limit exceeded", audit.RiskHigh), nil
		}
	}

	// Repeated transfers to one recipient.
	if input.RecipientID != "" {
		toRecipient, err := s.stats.CountToRecipientSince(ctx, input.UserID, input.RecipientID, now.Add(-time.Hour))
		if err != nil {
			return Decision{}, fmt.Errorf("count to recipient: %w", err)
		}
		if toRecipient > maxToRecipientPerHour {
			s.audit.Suspicious(ctx, input.UserID, "repeated transfers to one recipient", map[string]any{
				"recipient_id":    input.RecipientID,
				"count_last_hour": toRecipient,
			})
			return deny("too many transfers to the same recipient", audit.RiskHigh), nil
		}
	}

	// New accounts cannot move large amounts.
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("find user: %w", err)
	}
	if now.Sub(user.CreatedAt) < newAccountAge && input.Amount.GreaterThan(newAccountCap) {
		return deny("account too new for this amount", audit.RiskMedium), nil
	}

	// Off-hours high-value transfers go through but get flagged.
	if now.Hour() < offHoursEnd && input.Amount.GreaterThan(highValueThreshold) {
		s.audit.Suspicious(ctx, input.UserID, "high-value transfer during off-hours", map[string]any{
			"amount": input.Amount.StringFixed(2),
			"hour":   now.Hour(),
		})
		return Decision{Allowed: true, Reason: "off-hours high-value transfer", RiskLevel: audit.RiskMedium}, nil
	}

	return allow(), nil
}

// RiskScore computes a user's current risk score and bucket from failed
// logins, recent high-value activity, and the audit trail.
func (s *Service) RiskScore(ctx context.Context, userID, email string) (int, string, error) {
	now := s.nowFn()
	score := 0

	fails, err := s.users.FailedLoginCountSince(ctx, email, now.Add(-failureCountingWindow))
	if err != nil {
		return 0, "", fmt.Errorf("failed login count: %w", err)
	}
	if points := fails * 5; points > 25 {
		score += 25
	} else {
		score += points
	}

	highValue, err := s.stats.HighValueCountSince(ctx, userID, highValueThreshold, now.Add(-highValueWindow))
	if err != nil {
		return 0, "", fmt.Errorf("high value count: %w", err)
	}
	if highValue > 3 {
		score += 20
	}

	flagged, err := s.audit.HighRiskCount(ctx, userID, now.Add(-highRiskAuditWindow))
	if err != nil {
		return 0, "", fmt.Errorf("audit count: %w", err)
	}
	score += 10 * flagged

	switch {
	case score < 25:
		return score, audit.RiskLow, nil
	case score < 50:
		return score, audit.RiskMedium, nil
	case score < 75:
		return score, audit.RiskHigh, nil
	default:
		return score, audit.RiskCritical, nil
	}
}
