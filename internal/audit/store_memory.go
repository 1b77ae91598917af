package audit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with a mutex-guarded slice. Sequence IDs
// start at 1 and are dense.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryStore creates a new in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.SequenceID = int64(len(s.entries)) + 1
	s.entries = append(s.entries, entry)
	return entry.SequenceID, nil
}

func (s *InMemoryStore) RangeBySequence(_ context.Context, fromSeq, toSeq int64, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, entry := range s.entries {
		if entry.SequenceID < fromSeq || entry.SequenceID > toSeq {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) RangeByTime(_ context.Context, from, to time.Time, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, entry := range s.entries {
		if entry.Timestamp.Before(from) || !entry.Timestamp.Before(to) {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len reports how many entries exist. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
