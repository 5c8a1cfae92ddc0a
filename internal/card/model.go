package card

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card statuses.
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// Card is a platform-issued payment card linked to a wallet. Paying with it
// debits the linked wallet directly instead of the external vault.
type Card struct {
	ID            string
	UserID        string
	WalletID      string
	Number        string
	LastFour      string
	Brand         string
	HolderName    string
	ExpiryMonth   int
	ExpiryYear    int
	CVVHash       []byte
	SpendingLimit decimal.Decimal
	OnlineEnabled bool
	Status        string
	CreatedAt     time.Time
}

// IsActive reports whether the card may be charged.
func (c Card) IsActive() bool {
	return c.Status == StatusActive
}

// Masked returns the number with everything but the last four digits hidden.
func (c Card) Masked() string {
	return "**** **** **** " + c.LastFour
}

// Expired reports whether the card is past its expiry month.
func (c Card) Expired(now time.Time) bool {
	if c.ExpiryYear != now.Year() {
		return c.ExpiryYear < now.Year()
	}
	return c.ExpiryMonth < int(now.Month())
}
