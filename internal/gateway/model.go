package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checkout session statuses.
const (
	StatusPending   = "pending"
	StatusPending3D = "pending_3d"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
	StatusRefunded  = "refunded"
)

// maxOTPAttempts is how many wrong codes a payer gets before the session
// fails for good.
const maxOTPAttempts = 3

// Session is one hosted checkout attempt. It is created by the merchant,
// carries the card context once the payer submits one, and holds the OTP
// state for the 3-D Secure challenge.
type Session struct {
	ID            string
	Token         string
	MerchantID    string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	Status        string
	CustomerName  string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	CallbackURL   string
	CardLastFour  string
	CardBrand     string
	CardInternal  bool
	CardID        *string
	OTP           string
	OTPExpiresAt  *time.Time
	OTPAttempts   int
	TransactionID *string
	RefundedTxID  *string
	FailureReason *string
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the session passed its checkout window.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Open reports whether the session can still advance.
func (s Session) Open() bool {
	return s.Status == StatusPending || s.Status == StatusPending3D
}
