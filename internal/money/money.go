// Package money holds the monetary conventions shared across the ledger:
// amounts are decimals rounded to two places, and the platform supports a
// fixed set of currencies.
package money

import "github.com/shopspring/decimal"

// Supported currency codes.
const (
	TRY = "TRY"
	USD = "USD"
	EUR = "EUR"
)

// Round2 normalizes an amount to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// IsPositive reports whether d is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// Currencies returns the supported currency codes in provisioning order.
func Currencies() []string {
	return []string{TRY, USD, EUR}
}

// Symbol returns the display symbol for a currency code.
func Symbol(currency string) string {
	switch currency {
	case TRY:
		return "₺"
	case USD:
		return "$"
	case EUR:
		return "€"
	default:
		return currency
	}
}

// SupportedCurrency reports whether the platform issues wallets in currency.
func SupportedCurrency(currency string) bool {
	switch currency {
	case TRY, USD, EUR:
		return true
	default:
		return false
	}
}
