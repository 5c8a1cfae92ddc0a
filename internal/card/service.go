package card

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrBlocked is returned for payment checks on a blocked card.
	ErrBlocked = errors.New("card is blocked")
	// ErrExpired is returned for payment checks past the card's expiry.
	ErrExpired = errors.New("card is expired")
	// ErrOnlineDisabled is returned when the card cannot be used online.
	ErrOnlineDisabled = errors.New("card is not enabled for online payments")
	// ErrSpendingLimit is returned when a payment exceeds the per-transaction limit.
	ErrSpendingLimit = errors.New("amount exceeds card spending limit")
	// ErrInvalidCVV is returned when the CVV does not match.
	ErrInvalidCVV = errors.New("invalid cvv")
)

// Service issues and verifies platform cards.
type Service struct {
	repo  Repository
	nowFn func() time.Time
}

// NewService creates a card service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFn: func() time.Time { return time.Now().UTC() }}
}

// IssueInput captures data required to issue a card.
type IssueInput struct {
	UserID        string
	WalletID      string
	HolderName    string
	CVV           string
	SpendingLimit decimal.Decimal
	OnlineEnabled bool
}

// Issue creates a new platform card bound to a wallet. The CVV is stored
// only as a bcrypt hash. Cards expire three years out.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Card, error) {
	if input.UserID == "" || input.WalletID == "" {
		return Card{}, errors.New("user id and wallet id are required")
	}
	if len(input.CVV) != 3 {
		return Card{}, errors.New("cvv must be three digits")
	}

	number, err := GenerateNumber("4")
	if err != nil {
		return Card{}, err
	}
	cvvHash, err := bcrypt.GenerateFromPassword([]byte(input.CVV), bcrypt.DefaultCost)
	if err != nil {
		return Card{}, err
	}

	now := s.nowFn()
	expiry := now.AddDate(3, 0, 0)
	c := Card{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		WalletID:      input.WalletID,
		Number:        number,
		LastFour:      number[len(number)-4:],
		Brand:         Brand(number),
		HolderName:    input.HolderName,
		ExpiryMonth:   int(expiry.Month()),
		ExpiryYear:    expiry.Year(),
		CVVHash:       cvvHash,
		SpendingLimit: input.SpendingLimit,
		OnlineEnabled: input.OnlineEnabled,
		Status:        StatusActive,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Card{}, err
	}
	return c, nil
}

// Get fetches a card by id.
func (s *Service) Get(ctx context.Context, id string) (Card, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByNumber resolves a platform card from its full number. ErrNotFound
// means the number belongs to an external card.
func (s *Service) FindByNumber(ctx context.Context, number string) (Card, error) {
	return s.repo.FindByNumber(ctx, number)
}

// ListByUser returns a user's issued cards.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Card, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Block stops a card from being charged.
func (s *Service) Block(ctx context.Context, id string) error {
	return s.repo.SetStatus(ctx, id, StatusBlocked)
}

// VerifyCVV checks a CVV against the stored hash.
func (s *Service) VerifyCVV(c Card, cvv string) error {
	if err := bcrypt.CompareHashAndPassword(c.CVVHash, []byte(cvv)); err != nil {
		return ErrInvalidCVV
	}
	return nil
}

// CanPay verifies a card may be charged for an online payment of amount,
// given the linked wallet's available balance.
func (s *Service) CanPay(c Card, amount, walletAvailable decimal.Decimal) error {
	if !c.IsActive() {
		return ErrBlocked
	}
	if c.Expired(s.nowFn()) {
		return ErrExpired
	}
	if !c.OnlineEnabled {
		return ErrOnlineDisabled
	}
	if c.SpendingLimit.GreaterThan(decimal.Zero) && amount.GreaterThan(c.SpendingLimit) {
		return ErrSpendingLimit
	}
	if walletAvailable.LessThan(amount) {
		return errors.New("insufficient wallet balance")
	}
	return nil
}
