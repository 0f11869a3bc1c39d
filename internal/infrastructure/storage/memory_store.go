package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/shared"
)

var _ forecast.ArtifactStore = (*MemoryArtifactStore)(nil)

// MemoryArtifactStore holds artifacts in process memory.
// Use it for development and tests; nothing survives a restart.
type MemoryArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArtifactStore creates an empty MemoryArtifactStore
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{objects: make(map[string][]byte)}
}

// Put stores a copy of data under key
func (s *MemoryArtifactStore) Put(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = slices.Clone(data)
	return nil
}

// Get returns a copy of the artifact stored under key
func (s *MemoryArtifactStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return slices.Clone(data), nil
}

// Delete removes key
func (s *MemoryArtifactStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return shared.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// Keys lists stored keys in sorted order
func (s *MemoryArtifactStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
