package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/money"
	"github.com/atlas-pay/atlas_pay/internal/storage"
)

var (
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrWalletInactive is returned when a frozen wallet is mutated.
	ErrWalletInactive = errors.New("wallet is not active")
	// ErrInsufficientBalance is returned when available funds cannot cover a
	// debit or hold.
	ErrInsufficientBalance = errors.New("insufficient available balance")
)

// Service exposes the five balance primitives every money movement is built
// from. Each primitive runs inside an atomic unit, locks the wallet row,
// re-reads it, validates, and writes — never trusting a pre-lock snapshot.
type Service struct {
	repo   Repository
	runner storage.Runner
}

// NewService creates a wallet service.
func NewService(repo Repository, runner storage.Runner) *Service {
	return &Service{repo: repo, runner: runner}
}

// Credit adds funds: balance and available both increase.
func (s *Service) Credit(ctx context.Context, walletID string, amount decimal.Decimal) (Mutation, error) {
	return s.mutate(ctx, walletID, amount, func(w Wallet, amt decimal.Decimal) (Wallet, error) {
		w.Balance = w.Balance.Add(amt)
		w.Available = w.Available.Add(amt)
		return w, nil
	})
}

// Debit removes spendable funds: balance and available both decrease. Fails
// with ErrInsufficientBalance when available < amount.
func (s *Service) Debit(ctx context.Context, walletID string, amount decimal.Decimal) (Mutation, error) {
	return s.mutate(ctx, walletID, amount, func(w Wallet, amt decimal.Decimal) (Wallet, error) {
		if w.Available.LessThan(amt) {
			return Wallet{}, ErrInsufficientBalance
		}
		w.Balance = w.Balance.Sub(amt)
		w.Available = w.Available.Sub(amt)
		return w, nil
	})
}

// Hold reserves funds: available moves into pending, balance is unchanged.
func (s *Service) Hold(ctx context.Context, walletID string, amount decimal.Decimal) (Mutation, error) {
	return s.mutate(ctx, walletID, amount, func(w Wallet, amt decimal.Decimal) (Wallet, error) {
		if w.Available.LessThan(amt) {
			return Wallet{}, ErrInsufficientBalance
		}
		w.Available = w.Available.Sub(amt)
		w.Pending = w.Pending.Add(amt)
		return w, nil
	})
}

// ReleaseHold cancels a reservation: pending moves back to available.
func (s *Service) ReleaseHold(ctx context.Context, walletID string, amount decimal.Decimal) (Mutation, error) {
	return s.mutate(ctx, walletID, amount, func(w Wallet, amt decimal.Decimal) (Wallet, error) {
		if w.Pending.LessThan(amt) {
			return Wallet{}, ErrInsufficientBalance
		}
		w.Pending = w.Pending.Sub(amt)
		w.Available = w.Available.Add(amt)
		return w, nil
	})
}

// CaptureHold settles a reservation: balance and pending both decrease, the
// funds leave the wallet for good.
func (s *Service) CaptureHold(ctx context.Context, walletID string, amount decimal.Decimal) (Mutation, error) {
	return s.mutate(ctx, walletID, amount, func(w Wallet, amt decimal.Decimal) (Wallet, error) {
		if w.Pending.LessThan(amt) {
			return Wallet{}, ErrInsufficientBalance
		}
		w.Balance = w.Balance.Sub(amt)
		w.Pending = w.Pending.Sub(amt)
		return w, nil
	})
}

func (s *Service) mutate(ctx context.Context, walletID string, amount decimal.Decimal, apply func(Wallet, decimal.Decimal) (Wallet, error)) (Mutation, error) {
	if !money.IsPositive(amount) {
		return Mutation{}, ErrInvalidAmount
	}
	amount = money.Round2(amount)

	var mut Mutation
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.repo.GetForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if !w.IsActive() {
			return ErrWalletInactive
		}
		before := w.Balance
		updated, err := apply(w, amount)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateBalances(ctx, walletID, updated.Balance, updated.Available, updated.Pending); err != nil {
			return err
		}
		mut = Mutation{WalletID: walletID, BalanceBefore: before, BalanceAfter: updated.Balance}
		return nil
	})
	if err != nil {
		return Mutation{}, err
	}
	return mut, nil
}

// CreateDefaultWallets provisions one active wallet per supported currency for
// a new user, with the TRY wallet marked default.
func (s *Service) CreateDefaultWallets(ctx context.Context, userID string) ([]Wallet, error) {
	var wallets []Wallet
	err := s.runner.WithinTx(ctx, func(ctx context.Context) error {
		wallets = wallets[:0]
		now := time.Now().UTC()
		for _, currency := range money.Currencies() {
			w := Wallet{
				ID:        uuid.NewString(),
				UserID:    userID,
				Currency:  currency,
				Balance:   decimal.Zero,
				Available: decimal.Zero,
				Pending:   decimal.Zero,
				IsDefault: currency == money.TRY,
				Status:    StatusActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.repo.Create(ctx, w); err != nil {
				return fmt.Errorf("create %s wallet: %w", currency, err)
			}
			wallets = append(wallets, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// Get fetches a wallet by id without locking it.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// ListByUser returns all wallets owned by a user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Wallet, error) {
	return s.repo.ListByUser(ctx, userID)
}

// FindByUserAndCurrency fetches the user's wallet for a currency.
func (s *Service) FindByUserAndCurrency(ctx context.Context, userID, currency string) (Wallet, error) {
	return s.repo.FindByUserAndCurrency(ctx, userID, currency)
}

// Freeze stops all mutations on a wallet.
func (s *Service) Freeze(ctx context.Context, id string) error {
	return s.repo.SetStatus(ctx, id, StatusFrozen)
}

// Unfreeze reactivates a frozen wallet.
func (s *Service) Unfreeze(ctx context.Context, id string) error {
	return s.repo.SetStatus(ctx, id, StatusActive)
}
