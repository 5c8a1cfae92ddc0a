package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry types. Every money-moving transaction produces exactly one debit and
// one credit entry; rows are append-only and never updated or deleted.
const (
	TypeDebit  = "debit"
	TypeCredit = "credit"
)

// Entry is one side of a double-entry posting.
type Entry struct {
	ID            string
	TransactionID string
	WalletID      string
	Type          string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	CreatedAt     time.Time
}

// Posting describes one side of a movement to be recorded.
type Posting struct {
	WalletID      string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
}
