package merchant

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]Merchant
	byAPIKey map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:     make(map[string]Merchant),
		byAPIKey: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, m Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[m.ID]; exists {
		return errors.New("merchant exists")
	}
	if _, exists := r.byAPIKey[m.APIKey]; exists {
		return errors.New("api key exists")
	}
	r.byID[m.ID] = m
	r.byAPIKey[m.APIKey] = m.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return Merchant{}, ErrNotFound
	}
	return m, nil
}

func (r *memoryRepository) FindByAPIKey(_ context.Context, apiKey string) (Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAPIKey[apiKey]
	if !ok {
		return Merchant{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	r.byID[id] = m
	return nil
}
