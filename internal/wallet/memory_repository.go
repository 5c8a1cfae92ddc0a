package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

// memoryRepository implements Repository against in-process maps. It honors
// the same contract as the PostgreSQL repository: GetForUpdate holds a
// per-wallet row lock until the enclosing atomic unit finishes, and balance
// writes register compensation so a rolled-back unit leaves no trace.
type memoryRepository struct {
	mu      sync.RWMutex
	wallets map[string]Wallet
	rowMu   map[string]*sync.Mutex
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		wallets: make(map[string]Wallet),
		rowMu:   make(map[string]*sync.Mutex),
	}
}

func (r *memoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.wallets[w.ID]; exists {
		return errors.New("wallet exists")
	}
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID && existing.Currency == w.Currency {
			return errors.New("wallet exists for user and currency")
		}
	}
	r.wallets[w.ID] = w
	r.rowMu[w.ID] = &sync.Mutex{}
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) GetForUpdate(ctx context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	rowMu, ok := r.rowMu[id]
	r.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrNotFound
	}

	storage.HoldRowLock(ctx, rowMu)

	// Re-read after the lock: the row may have changed while we waited.
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) UpdateBalances(ctx context.Context, id string, balance, available, pending decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return ErrNotFound
	}
	prev := w
	storage.OnRollback(ctx, func() {
		r.mu.Lock()
		r.wallets[id] = prev
		r.mu.Unlock()
	})
	w.Balance = balance
	w.Available = available
	w.Pending = pending
	w.UpdatedAt = time.Now().UTC()
	r.wallets[id] = w
	return nil
}

func (r *memoryRepository) FindByUserAndCurrency(_ context.Context, userID, currency string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID && w.Currency == currency {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var wallets []Wallet
	for _, w := range r.wallets {
		if w.UserID == userID {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].IsDefault != wallets[j].IsDefault {
			return wallets[i].IsDefault
		}
		return wallets[i].Currency < wallets[j].Currency
	})
	return wallets, nil
}

func (r *memoryRepository) SetStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return ErrNotFound
	}
	prev := w
	storage.OnRollback(ctx, func() {
		r.mu.Lock()
		r.wallets[id] = prev
		r.mu.Unlock()
	})
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	r.wallets[id] = w
	return nil
}
