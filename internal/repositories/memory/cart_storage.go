package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
)

// CartStorage keeps session values in process memory. It backs local development and tests.
type CartStorage struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte
}

var _ repositories.CartStorage = (*CartStorage)(nil)

// NewCartStorage constructs an empty in-memory cart storage.
func NewCartStorage() *CartStorage {
	return &CartStorage{values: make(map[string]map[string][]byte)}
}

// Get implements repositories.CartStorage.
func (s *CartStorage) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	sessionID, key = strings.TrimSpace(sessionID), strings.TrimSpace(key)
	if sessionID == "" || key == "" {
		return nil, repositories.NewStorageError("memory.cart.get", repositories.StorageErrorInvalidInput, nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[sessionID][key]
	if !ok {
		return nil, repositories.NewStorageError("memory.cart.get", repositories.StorageErrorNotFound, nil)
	}
	return append([]byte(nil), value...), nil
}

// Put implements repositories.CartStorage.
func (s *CartStorage) Put(_ context.Context, sessionID, key string, value []byte) error {
	sessionID, key = strings.TrimSpace(sessionID), strings.TrimSpace(key)
	if sessionID == "" || key == "" {
		return repositories.NewStorageError("memory.cart.put", repositories.StorageErrorInvalidInput, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.values[sessionID]
	if !ok {
		session = make(map[string][]byte)
		s.values[sessionID] = session
	}
	session[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements repositories.CartStorage.
func (s *CartStorage) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, strings.TrimSpace(sessionID))
	return nil
}
