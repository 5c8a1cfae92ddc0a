package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet statuses.
const (
	StatusActive = "active"
	StatusFrozen = "frozen"
)

// Wallet is a per-user, per-currency balance record. Balance is the full
// ledger balance, Available the spendable part, Pending the sum of active
// holds; Balance = Available + Pending at all times.
type Wallet struct {
	ID        string
	UserID    string
	Currency  string
	Balance   decimal.Decimal
	Available decimal.Decimal
	Pending   decimal.Decimal
	IsDefault bool
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the wallet accepts mutations.
func (w Wallet) IsActive() bool {
	return w.Status == StatusActive
}

// Mutation reports the balance movement produced by one ledger primitive.
type Mutation struct {
	WalletID      string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}
