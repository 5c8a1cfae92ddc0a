// Package rates resolves conversion rates between supported currencies.
// Lookup order: stored rate for the pair, inverse of the stored reverse pair,
// built-in default, and finally 1.0 so an unknown pair degrades to a
// same-value conversion instead of blocking a payment.
package rates

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

var defaultRates = map[pair]string{
	{money.USD, money.TRY}: "32.50",
	{money.EUR, money.TRY}: "35.20",
	{money.USD, money.EUR}: "0.92",
	{money.EUR, money.USD}: "1.09",
	{money.TRY, money.USD}: "0.031",
	{money.TRY, money.EUR}: "0.028",
}

// Service resolves and converts between currencies.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a rates service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GetRate returns the conversion rate from one currency to another.
func (s *Service) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	rate, err := s.repo.Find(ctx, from, to)
	if err == nil {
		return rate.Rate, nil
	}
	if !errors.Is(err, ErrRateNotFound) {
		return decimal.Decimal{}, err
	}

	// Invert a stored reverse-direction rate before falling back to defaults.
	reverse, err := s.repo.Find(ctx, to, from)
	if err == nil && reverse.Rate.GreaterThan(decimal.Zero) {
		return decimal.NewFromInt(1).Div(reverse.Rate), nil
	}
	if err != nil && !errors.Is(err, ErrRateNotFound) {
		return decimal.Decimal{}, err
	}

	if def, ok := defaultRates[pair{from, to}]; ok {
		return decimal.RequireFromString(def), nil
	}

	s.logger.Warn("no exchange rate for pair, using 1.0", "from", from, "to", to)
	return decimal.NewFromInt(1), nil
}

// Convert applies the pair's rate to an amount, rounded to two places.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := s.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return money.Round2(amount.Mul(rate)), rate, nil
}

// AllRates returns every stored rate.
func (s *Service) AllRates(ctx context.Context) ([]Rate, error) {
	return s.repo.List(ctx)
}

// UpdateRate stores a new rate for an ordered pair.
func (s *Service) UpdateRate(ctx context.Context, from, to string, rate decimal.Decimal) error {
	if !money.SupportedCurrency(from) || !money.SupportedCurrency(to) {
		return errors.New("unsupported currency pair")
	}
	if !money.IsPositive(rate) {
		return errors.New("rate must be positive")
	}
	return s.repo.Upsert(ctx, Rate{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
		UpdatedAt:    time.Now().UTC(),
	})
}
