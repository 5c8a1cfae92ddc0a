package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

type memoryRepository struct {
	mu  sync.RWMutex
	txs map[string]Transaction
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{txs: make(map[string]Transaction)}
}

func (r *memoryRepository) Create(ctx context.Context, t Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.txs[t.ID]; exists {
		return errors.New("transaction exists")
	}
	if t.IdempotencyKey != nil {
		for _, other := range r.txs {
			if other.IdempotencyKey != nil && *other.IdempotencyKey == *t.IdempotencyKey {
				return ErrDuplicateKey
			}
		}
	}
	storage.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.txs, t.ID)
		r.mu.Unlock()
	})
	r.txs[t.ID] = t
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryRepository) FindByIdempotencyKey(_ context.Context, key string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.txs {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return t, nil
		}
	}
	return Transaction{}, ErrNotFound
}

func (r *memoryRepository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	return r.update(ctx, id, func(t Transaction) Transaction {
		t.Status = StatusCompleted
		t.CompletedAt = &completedAt
		return t
	})
}

func (r *memoryRepository) Fail(ctx context.Context, id, reason string) error {
	return r.update(ctx, id, func(t Transaction) Transaction {
		t.Status = StatusFailed
		t.FailureReason = &reason
		return t
	})
}

func (r *memoryRepository) Approve(ctx context.Context, id, adminID string) error {
	r.mu.RLock()
	t, ok := r.txs[id]
	r.mu.RUnlock()
	if !ok || t.Status != StatusRequiresApproval {
		return ErrNotFound
	}
	return r.update(ctx, id, func(t Transaction) Transaction {
		t.Status = StatusProcessing
		t.ApprovedBy = &adminID
		return t
	})
}

func (r *memoryRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.update(ctx, id, func(t Transaction) Transaction {
		t.Status = status
		return t
	})
}

func (r *memoryRepository) SetConversion(ctx context.Context, id string, rate, converted decimal.Decimal, convertedCurrency string) error {
	return r.update(ctx, id, func(t Transaction) Transaction {
		t.ExchangeRate = &rate
		t.ConvertedAmount = &converted
		t.ConvertedCurrency = &convertedCurrency
		return t
	})
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, t := range r.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) PendingApprovals(_ context.Context) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, t := range r.txs {
		if t.Status == StatusRequiresApproval {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) DailyOutgoingSum(_ context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := day.Truncate(24 * time.Hour)
	sum := decimal.Zero
	for _, t := range r.txs {
		if t.UserID != userID || t.CreatedAt.Before(start) {
			continue
		}
		switch t.Status {
		case StatusCompleted, StatusProcessing, StatusPending:
		default:
			continue
		}
		switch t.Type {
		case TypeTransfer, TypeWithdrawal, TypeExchange:
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (r *memoryRepository) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.txs {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) CountToRecipientSince(_ context.Context, userID, recipientID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.txs {
		if t.UserID == userID && t.RecipientID != nil && *t.RecipientID == recipientID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) HighValueCountSince(_ context.Context, userID string, threshold decimal.Decimal, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.txs {
		if t.UserID == userID && t.Amount.GreaterThan(threshold) && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) MerchantDailyTotal(_ context.Context, merchantID string, day time.Time) (decimal.Decimal, error) {
	return r.merchantTotalSince(merchantID, day.Truncate(24*time.Hour))
}

func (r *memoryRepository) MerchantMonthlyTotal(_ context.Context, merchantID string, month time.Time) (decimal.Decimal, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return r.merchantTotalSince(merchantID, start)
}

func (r *memoryRepository) merchantTotalSince(merchantID string, since time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range r.txs {
		if t.MerchantID != nil && *t.MerchantID == merchantID &&
			t.Type == TypePayment && t.Status == StatusCompleted && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (r *memoryRepository) update(ctx context.Context, id string, apply func(Transaction) Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return ErrNotFound
	}
	prev := t
	storage.OnRollback(ctx, func() {
		r.mu.Lock()
		r.txs[id] = prev
		r.mu.Unlock()
	})
	r.txs[id] = apply(t)
	return nil
}
