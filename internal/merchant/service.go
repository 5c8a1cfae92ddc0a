package merchant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/money"
)

var (
	// ErrSuspended is returned for payment attempts on a suspended merchant.
	ErrSuspended = errors.New("merchant is suspended")
	// ErrDailyLimitExceeded is returned when a payment would push the
	// merchant's settled volume past its daily limit.
	ErrDailyLimitExceeded = errors.New("merchant daily limit exceeded")
	// ErrMonthlyLimitExceeded is the monthly counterpart.
	ErrMonthlyLimitExceeded = errors.New("merchant monthly limit exceeded")
)

// SettledVolume reports a merchant's completed payment totals. The
// transaction store satisfies this.
type SettledVolume interface {
	MerchantDailyTotal(ctx context.Context, merchantID string, day time.Time) (decimal.Decimal, error)
	MerchantMonthlyTotal(ctx context.Context, merchantID string, month time.Time) (decimal.Decimal, error)
}

// Service manages merchant accounts and their payment limits.
type Service struct {
	repo   Repository
	volume SettledVolume
	nowFn  func() time.Time
}

// NewService creates a merchant service.
func NewService(repo Repository, volume SettledVolume) *Service {
	return &Service{repo: repo, volume: volume, nowFn: func() time.Time { return time.Now().UTC() }}
}

// RegisterInput captures data required to onboard a merchant.
type RegisterInput struct {
	UserID         string
	BusinessName   string
	WebhookURL     string
	DailyLimit     decimal.Decimal
	MonthlyLimit   decimal.Decimal
	CommissionRate decimal.Decimal
	IsSandbox      bool
}

// Register onboards a merchant and issues its API credentials.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Merchant, error) {
	if input.UserID == "" || input.BusinessName == "" {
		return Merchant{}, errors.New("user id and business name are required")
	}
	if input.CommissionRate.IsNegative() || input.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Merchant{}, errors.New("commission rate must be in [0, 1)")
	}

	m := Merchant{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		BusinessName:   input.BusinessName,
		APIKey:         "pk_test_" + randomHex(16),
		APISecret:      "sk_test_" + randomHex(16),
		WebhookURL:     input.WebhookURL,
		WebhookSecret:  randomHex(32),
		DailyLimit:     input.DailyLimit,
		MonthlyLimit:   input.MonthlyLimit,
		CommissionRate: input.CommissionRate,
		Status:         StatusActive,
		IsSandbox:      input.IsSandbox,
		CreatedAt:      s.nowFn(),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Merchant{}, err
	}
	return m, nil
}

// Authenticate resolves an active merchant from its API key.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (Merchant, error) {
	m, err := s.repo.FindByAPIKey(ctx, apiKey)
	if err != nil {
		return Merchant{}, err
	}
	if !m.IsActive() {
		return Merchant{}, ErrSuspended
	}
	return m, nil
}

// Get fetches a merchant by id.
func (s *Service) Get(ctx context.Context, id string) (Merchant, error) {
	return s.repo.FindByID(ctx, id)
}

// Suspend blocks a merchant from accepting payments.
func (s *Service) Suspend(ctx context.Context, id string) error {
	return s.repo.SetStatus(ctx, id, StatusSuspended)
}

// Commission computes the platform fee on an amount.
func (s *Service) Commission(m Merchant, amount decimal.Decimal) decimal.Decimal {
	return money.Round2(amount.Mul(m.CommissionRate))
}

// CheckLimits verifies a prospective payment fits within the merchant's daily
// and monthly settled-volume limits. A zero limit means unlimited.
func (s *Service) CheckLimits(ctx context.Context, m Merchant, amount decimal.Decimal) error {
	now := s.nowFn()
	if m.DailyLimit.GreaterThan(decimal.Zero) {
		total, err := s.volume.MerchantDailyTotal(ctx, m.ID, now)
		if err != nil {
			return fmt.Errorf("daily volume: %w", err)
		}
		if total.Add(amount).GreaterThan(m.DailyLimit) {
			return ErrDailyLimitExceeded
		}
	}
	if m.MonthlyLimit.GreaterThan(decimal.Zero) {
		total, err := s.volume.MerchantMonthlyTotal(ctx, m.ID, now)
		if err != nil {
			return fmt.Errorf("monthly volume: %w", err)
		}
		if total.Add(amount).GreaterThan(m.MonthlyLimit) {
			return ErrMonthlyLimitExceeded
		}
	}
	return nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("merchant: read random: %v", err))
	}
	return hex.EncodeToString(buf)
}
