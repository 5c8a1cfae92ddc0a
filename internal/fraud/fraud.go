// Package fraud gates money movement and authentication. Transfer checks run
// against the transaction store, login and API throttles against Redis, and
// everything suspicious lands in the audit trail.
package fraud

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the outcome of a fraud check.
type Decision struct {
	Allowed   bool
	Reason    string
	RiskLevel string
}

// TransactionStats reports a user's recent transaction activity. The
// transaction store satisfies this.
type TransactionStats interface {
	DailyOutgoingSum(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountToRecipientSince(ctx context.Context, userID, recipientID string, since time.Time) (int, error)
	HighValueCountSince(ctx context.Context, userID string, threshold decimal.Decimal, since time.Time) (int, error)
}

// Limits are the thresholds the transfer and login checks enforce.
type Limits struct {
	MaxSingleTransfer  decimal.Decimal
	DailyTransferLimit decimal.Decimal
	MaxLoginAttempts   int
	APIRateLimit       int
	APIRateWindow      time.Duration
}

// Velocity and pattern thresholds. These are fixed platform policy rather
// than per-deployment configuration.
const (
	maxTransfersPerMinute   = 5
	maxToRecipientPerHour   = 5
	newAccountAge           = 7 * 24 * time.Hour
	ipFailureThreshold      = 10
	ipLockoutDuration       = 30 * time.Minute
	emailLockoutDuration    = 15 * time.Minute
	failureCountingWindow   = 15 * time.Minute
	offHoursEnd             = 6
	highRiskAuditWindow     = 7 * 24 * time.Hour
	highValueWindow         = 24 * time.Hour
)

var (
	newAccountCap      = decimal.NewFromInt(10000)
	highValueThreshold = decimal.NewFromInt(25000)
)

func allow() Decision {
	return Decision{Allowed: true, RiskLevel: "low"}
}

func deny(reason, riskLevel string) Decision {
	return Decision{Allowed: false, Reason: reason, RiskLevel: riskLevel}
}
