package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

type memoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Append(ctx context.Context, entries ...Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := len(r.entries)
	storage.OnRollback(ctx, func() {
		r.mu.Lock()
		r.entries = r.entries[:prev]
		r.mu.Unlock()
	})
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *memoryRepository) ListByTransaction(_ context.Context, transactionID string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (r *memoryRepository) ListByWallet(_ context.Context, walletID string, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].WalletID == walletID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}
