// Package store persists profile records. Every mutation is an optimistic
// compare-and-swap on the record version, so a slow provider call never
// holds a lock against unrelated requests, and the scheduler sweep can race
// request handlers safely.
package store

import (
	"context"
	"time"

	"talentgate/internal/domain"
)

// Store is the profile record store. Implementations return
// sentinel.ErrNotFound for missing records and sentinel.ErrConflict when a
// versioned write loses a race; services retry or translate.
type Store interface {
	// Get returns a snapshot of the record. Mutating the snapshot does not
	// affect the store.
	Get(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error)

	// Create inserts a new record at version 1. ErrConflict if the canonical
	// ID already exists.
	Create(ctx context.Context, record *domain.ProfileRecord) error

	// Update writes the record iff the stored version equals record.Version,
	// then increments the version. ErrConflict on mismatch.
	Update(ctx context.Context, record *domain.ProfileRecord) error

	// Delete removes the record iff the stored version matches. Used by the
	// retention sweep so a concurrent update cancels the deletion.
	Delete(ctx context.Context, canonicalID string, version int64) error

	// ListRetentionExpired returns up to limit records whose retention
	// lifetime has elapsed at now.
	ListRetentionExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ProfileRecord, error)

	// ListNotificationOverdue returns up to limit enriched, non-tombstoned
	// records whose notification deadline has passed unsent at now.
	ListNotificationOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.ProfileRecord, error)

	// Ping reports whether the store is reachable, for health checks.
	Ping(ctx context.Context) error
}
