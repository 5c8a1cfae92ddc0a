package rates

import (
	"context"
	"sort"
	"sync"
)

type pair struct{ from, to string }

type memoryRepository struct {
	mu    sync.RWMutex
	rates map[pair]Rate
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{rates: make(map[pair]Rate)}
}

func (r *memoryRepository) Find(_ context.Context, from, to string) (Rate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.rates[pair{from, to}]
	if !ok {
		return Rate{}, ErrRateNotFound
	}
	return rate, nil
}

func (r *memoryRepository) Upsert(_ context.Context, rate Rate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[pair{rate.FromCurrency, rate.ToCurrency}] = rate
	return nil
}

func (r *memoryRepository) List(_ context.Context) ([]Rate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rate, 0, len(r.rates))
	for _, rate := range r.rates {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromCurrency != out[j].FromCurrency {
			return out[i].FromCurrency < out[j].FromCurrency
		}
		return out[i].ToCurrency < out[j].ToCurrency
	})
	return out, nil
}
