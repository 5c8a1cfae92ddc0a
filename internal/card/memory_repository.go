package card

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]Card
	byNumber map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:     make(map[string]Card),
		byNumber: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, c Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.ID]; exists {
		return errors.New("card exists")
	}
	if _, exists := r.byNumber[c.Number]; exists {
		return errors.New("card number exists")
	}
	r.byID[c.ID] = c
	r.byNumber[c.Number] = c.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) FindByNumber(_ context.Context, number string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[number]
	if !ok {
		return Card{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var cards []Card
	for _, c := range r.byID {
		if c.UserID == userID {
			cards = append(cards, c)
		}
	}
	return cards, nil
}

func (r *memoryRepository) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	r.byID[id] = c
	return nil
}
