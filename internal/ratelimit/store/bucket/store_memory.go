package bucket

import (
	"context"
	"sync"
	"time"

	"talentgate/internal/domain"
	"talentgate/internal/ratelimit/models"
)

// InMemoryStore implements Store with one mutex-guarded bucket per provider.
// Contention is low (one bucket per provider, not per request), so a plain
// mutex is enough; no distributed coordination. For multi-instance
// deployments use RedisStore instead.
type InMemoryStore struct {
	mu      sync.Mutex
	buckets map[string]models.BucketState
}

// NewInMemoryStore creates a new in-memory bucket store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{buckets: make(map[string]models.BucketState)}
}

// Acquire refills the bucket for key and takes cost tokens if available.
func (s *InMemoryStore) Acquire(_ context.Context, key string, cfg domain.BucketConfig, cost float64, now time.Time) (models.BucketState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := refill(s.buckets[key], cfg, now)
	if state.Tokens >= cost {
		state.Tokens -= cost
		s.buckets[key] = state
		return state, true, nil
	}

	s.buckets[key] = state
	return state, false, nil
}

// Snapshot returns the refilled state without consuming tokens.
func (s *InMemoryStore) Snapshot(_ context.Context, key string, cfg domain.BucketConfig, now time.Time) (models.BucketState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := refill(s.buckets[key], cfg, now)
	s.buckets[key] = state
	return state, nil
}

// Reset clears the bucket for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}
