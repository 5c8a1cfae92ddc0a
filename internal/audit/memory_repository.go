package audit

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryRepository constructs an in-memory audit repository for tests.
func NewMemoryRepository() *memoryRepository {
	return &memoryRepository{}
}

func (r *memoryRepository) Append(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRepository) CountHighRiskSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, e := range r.entries {
		if e.UserID == userID && (e.RiskLevel == RiskHigh || e.RiskLevel == RiskCritical) && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Entries returns a snapshot of everything recorded, newest last.
func (r *memoryRepository) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
