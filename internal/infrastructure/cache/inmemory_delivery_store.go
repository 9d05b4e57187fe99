package cache

import (
	"context"
	"sync"
	"time"

	"github.com/storesync/backend/internal/domain/shared"
)

// entry is a stored delivery id with expiration
type entry struct {
	expiresAt time.Time
}

// InMemoryDeliveryStore implements DeliveryDedup with a local map. Suitable
// for single-instance deployments and tests; a background goroutine evicts
// expired ids.
type InMemoryDeliveryStore struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDeliveryStore creates an in-memory delivery dedup store.
func NewInMemoryDeliveryStore() *InMemoryDeliveryStore {
	store := &InMemoryDeliveryStore{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// MarkSeen records a delivery id with a TTL. Returns true if the id was
// newly recorded.
func (s *InMemoryDeliveryStore) MarkSeen(_ context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[deliveryID]; exists {
		if time.Now().Before(e.expiresAt) {
			return false, nil
		}
		// expired entry, overwrite
	}

	s.entries[deliveryID] = entry{
		expiresAt: time.Now().Add(ttl),
	}
	return true, nil
}

// Seen reports whether a delivery id is recorded and unexpired.
func (s *InMemoryDeliveryStore) Seen(_ context.Context, deliveryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[deliveryID]
	if !exists {
		return false, nil
	}
	if time.Now().After(e.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryDeliveryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryDeliveryStore) cleanupLoop() {
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

func (s *InMemoryDeliveryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for deliveryID, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, deliveryID)
		}
	}
}

// Size returns the number of entries in the store (for tests)
func (s *InMemoryDeliveryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ shared.DeliveryDedup = (*InMemoryDeliveryStore)(nil)
