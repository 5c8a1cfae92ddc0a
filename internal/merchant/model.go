package merchant

import (
	"time"

	"github.com/shopspring/decimal"
)

// Merchant statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Merchant is a business account that accepts payments through the gateway.
// Settlements land in the owner's wallet for the payment currency.
type Merchant struct {
	ID             string
	UserID         string
	BusinessName   string
	APIKey         string
	APISecret      string
	WebhookURL     string
	WebhookSecret  string
	DailyLimit     decimal.Decimal
	MonthlyLimit   decimal.Decimal
	CommissionRate decimal.Decimal
	Status         string
	IsSandbox      bool
	CreatedAt      time.Time
}

// IsActive reports whether the merchant may accept payments.
func (m Merchant) IsActive() bool {
	return m.Status == StatusActive
}
