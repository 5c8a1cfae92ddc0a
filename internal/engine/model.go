package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeTransfer   = "transfer"
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
	TypePayment    = "payment"
	TypeRefund     = "refund"
	TypeFee        = "fee"
	TypeExchange   = "exchange"
	TypeReversal   = "reversal"
)

// Transaction statuses.
const (
	StatusPending          = "pending"
	StatusProcessing       = "processing"
	StatusRequiresApproval = "requires_approval"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
	StatusCancelled        = "cancelled"
)

// Transaction is one money movement through the engine. Pointer fields are
// NULL in storage when not applicable to the transaction type.
type Transaction struct {
	ID                string
	ReferenceID       string
	UserID            string
	Type              string
	Status            string
	Amount            decimal.Decimal
	Currency          string
	Fee               decimal.Decimal
	FromWalletID      *string
	ToWalletID        *string
	RecipientID       *string
	MerchantID        *string
	IdempotencyKey    *string
	ExchangeRate      *decimal.Decimal
	ConvertedAmount   *decimal.Decimal
	ConvertedCurrency *string
	Description       string
	ApprovedBy        *string
	FailureReason     *string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// IsFinal reports whether the transaction can no longer change state.
func (t Transaction) IsFinal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NewReferenceID produces a human-quotable transaction reference, e.g.
// TRX20260310a1b2c3d4e5f60718.
func NewReferenceID(now time.Time) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("engine: read random: %v", err))
	}
	return fmt.Sprintf("TRX%s%s", now.Format("20060102"), hex.EncodeToString(buf))
}
