package cache

import (
	"context"
	"sync"
	"time"
)

var _ LeaseStore = (*InMemoryLeaseStore)(nil)

// InMemoryLeaseStore implements LeaseStore with a process-local map.
// Leases are not shared across replicas.
type InMemoryLeaseStore struct {
	mu        sync.Mutex
	leases    map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryLeaseStore creates a store and starts its expiry sweeper
func NewInMemoryLeaseStore() *InMemoryLeaseStore {
	s := &InMemoryLeaseStore{
		leases:   make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

// TryAcquire grants key if it is free or its previous lease expired
func (s *InMemoryLeaseStore) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.leases[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.leases[key] = now.Add(ttl)
	return true, nil
}

// Held reports whether key has an unexpired lease
func (s *InMemoryLeaseStore) Held(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.leases[key]
	return ok && s.now().Before(exp), nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *InMemoryLeaseStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryLeaseStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryLeaseStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, exp := range s.leases {
		if !now.Before(exp) {
			delete(s.leases, key)
		}
	}
}

// Size returns the number of tracked leases, expired or not
func (s *InMemoryLeaseStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leases)
}
