package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recorder writes balanced double-entry postings. It must be called inside the
// same atomic unit as the balance mutations it describes.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a ledger recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends exactly one debit and one credit entry for a transaction.
func (r *Recorder) Record(ctx context.Context, transactionID string, debit, credit Posting) error {
	if debit.WalletID == "" || credit.WalletID == "" {
		return errors.New("ledger: both postings need a wallet")
	}
	now := time.Now().UTC()
	return r.repo.Append(ctx,
		Entry{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			WalletID:      debit.WalletID,
			Type:          TypeDebit,
			Amount:        debit.Amount,
			BalanceBefore: debit.BalanceBefore,
			BalanceAfter:  debit.BalanceAfter,
			Description:   debit.Description,
			CreatedAt:     now,
		},
		Entry{
			ID:            uuid.NewString(),
			TransactionID: transactionID,
			WalletID:      credit.WalletID,
			Type:          TypeCredit,
			Amount:        credit.Amount,
			BalanceBefore: credit.BalanceBefore,
			BalanceAfter:  credit.BalanceAfter,
			Description:   credit.Description,
			CreatedAt:     now,
		},
	)
}

// History returns the most recent entries for a wallet.
func (r *Recorder) History(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return r.repo.ListByWallet(ctx, walletID, limit)
}

// ForTransaction returns the posting pair recorded for a transaction.
func (r *Recorder) ForTransaction(ctx context.Context, transactionID string) ([]Entry, error) {
	return r.repo.ListByTransaction(ctx, transactionID)
}
