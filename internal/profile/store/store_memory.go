package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"talentgate/internal/domain"
	"talentgate/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a mutex-guarded map. Used in tests and
// single-instance deployments; for production use PostgresStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ProfileRecord
}

// NewInMemoryStore creates a new in-memory profile store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*domain.ProfileRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, canonicalID string) (*domain.ProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[canonicalID]
	if !ok {
		return nil, fmt.Errorf("profile %q: %w", canonicalID, sentinel.ErrNotFound)
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Create(_ context.Context, record *domain.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.CanonicalID]; exists {
		return fmt.Errorf("profile %q: %w", record.CanonicalID, sentinel.ErrConflict)
	}
	stored := record.Clone()
	stored.Version = 1
	s.records[record.CanonicalID] = stored
	record.Version = 1
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, record *domain.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.CanonicalID]
	if !ok {
		return fmt.Errorf("profile %q: %w", record.CanonicalID, sentinel.ErrNotFound)
	}
	if current.Version != record.Version {
		return fmt.Errorf("profile %q version %d: %w", record.CanonicalID, record.Version, sentinel.ErrConflict)
	}
	stored := record.Clone()
	stored.Version = current.Version + 1
	s.records[record.CanonicalID] = stored
	record.Version = stored.Version
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, canonicalID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[canonicalID]
	if !ok {
		return fmt.Errorf("profile %q: %w", canonicalID, sentinel.ErrNotFound)
	}
	if current.Version != version {
		return fmt.Errorf("profile %q version %d: %w", canonicalID, version, sentinel.ErrConflict)
	}
	delete(s.records, canonicalID)
	return nil
}

func (s *InMemoryStore) ListRetentionExpired(_ context.Context, now time.Time, limit int) ([]*domain.ProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ProfileRecord
	for _, record := range s.records {
		if record.RetentionExpired(now) {
			out = append(out, record.Clone())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListNotificationOverdue(_ context.Context, now time.Time, limit int) ([]*domain.ProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ProfileRecord
	for _, record := range s.records {
		if record.Stage != domain.StageTombstoned && record.Enriched() && record.NotificationOverdue(now) {
			out = append(out, record.Clone())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

// Len reports how many records are stored. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
