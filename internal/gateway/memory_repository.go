package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/atlas-pay/atlas_pay/internal/storage"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byToken map[string]Session
	byID    map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byToken: make(map[string]Session),
		byID:    make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byToken[s.Token]; exists {
		return errors.New("session token exists")
	}
	r.byToken[s.Token] = s
	r.byID[s.ID] = s.Token
	return nil
}

func (r *memoryRepository) FindByToken(_ context.Context, token string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *memoryRepository) FindByTransaction(_ context.Context, transactionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byToken {
		if s.TransactionID != nil && *s.TransactionID == transactionID {
			return s, nil
		}
	}
	return Session{}, ErrSessionNotFound
}

func (r *memoryRepository) Update(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.byID[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	prev := r.byToken[token]
	storage.OnRollback(ctx, func() {
		r.mu.Lock()
		r.byToken[token] = prev
		r.mu.Unlock()
	})
	r.byToken[token] = s
	return nil
}
