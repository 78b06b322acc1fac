package repository

import (
	"context"
	"sync"

	"meetmap-backend/internal/models"
)

// MemoryStore holds the serialized document in memory. Every Load decodes a
// fresh copy, so callers never share state with the store.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeDocument(s.data)
}

func (s *MemoryStore) Save(ctx context.Context, doc *models.Document) error {
	data, err := encodeDocument(doc, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
