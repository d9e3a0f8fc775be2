package localstore

import (
	"context"
	"sync"

	"github.com/jsa498/digitalmarketing/internal/model"
)

// MemoryStore keeps the snapshot in process memory.
// Use this for tests or when restart survival is not wanted.
type MemoryStore struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes a copy of the stored snapshot.
func (s *MemoryStore) Load(ctx context.Context) ([]model.CartLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return decode(s.data)
}

// Save stores an encoded copy of items.
func (s *MemoryStore) Save(ctx context.Context, items []model.CartLineItem) error {
	data, err := encode(items)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
