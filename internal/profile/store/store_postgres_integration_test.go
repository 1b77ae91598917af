//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"talentgate/internal/domain"
	"talentgate/internal/profile/store"
	"talentgate/pkg/platform/sentinel"
	"talentgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "profiles"))
}

func newTestRecord(canonicalID string) *domain.ProfileRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ProfileRecord{
		CanonicalID:        canonicalID,
		Provider:           "providerX",
		Region:             "EU",
		Stage:              domain.StageDiscovered,
		DiscoveredAt:       now,
		RetentionExpiresAt: now.Add(365 * 24 * time.Hour),
		Payload:            []byte("sealed payload"),
	}
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	record := newTestRecord("providerX:1")

	s.Require().NoError(s.store.Create(ctx, record))
	s.Equal(int64(1), record.Version)

	got, err := s.store.Get(ctx, "providerX:1")
	s.Require().NoError(err)
	s.Equal(record.CanonicalID, got.CanonicalID)
	s.Equal(record.Provider, got.Provider)
	s.Equal(domain.StageDiscovered, got.Stage)
	s.Equal(record.Payload, got.Payload)
	s.Equal(int64(1), got.Version)
	s.WithinDuration(record.DiscoveredAt, got.DiscoveredAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "providerX:missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCreateDuplicateConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRecord("providerX:1")))

	err := s.store.Create(ctx, newTestRecord("providerX:1"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUpdateBumpsVersion() {
	ctx := context.Background()
	record := newTestRecord("providerX:1")
	s.Require().NoError(s.store.Create(ctx, record))

	record.Payload = []byte("refreshed")
	s.Require().NoError(s.store.Update(ctx, record))
	s.Equal(int64(2), record.Version)

	got, err := s.store.Get(ctx, "providerX:1")
	s.Require().NoError(err)
	s.Equal([]byte("refreshed"), got.Payload)
	s.Equal(int64(2), got.Version)
}

func (s *PostgresStoreSuite) TestUpdateStaleVersionConflicts() {
	ctx := context.Background()
	record := newTestRecord("providerX:1")
	s.Require().NoError(s.store.Create(ctx, record))

	stale := record.Clone()
	record.Payload = []byte("first writer")
	s.Require().NoError(s.store.Update(ctx, record))

	stale.Payload = []byte("second writer")
	err := s.store.Update(ctx, stale)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestDeleteRequiresCurrentVersion() {
	ctx := context.Background()
	record := newTestRecord("providerX:1")
	s.Require().NoError(s.store.Create(ctx, record))

	err := s.store.Delete(ctx, record.CanonicalID, record.Version+1)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.store.Delete(ctx, record.CanonicalID, record.Version))
	_, err = s.store.Get(ctx, record.CanonicalID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListRetentionExpired() {
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newTestRecord("providerX:expired")
	expired.DiscoveredAt = now.Add(-400 * 24 * time.Hour)
	expired.RetentionExpiresAt = now.Add(-time.Hour)
	s.Require().NoError(s.store.Create(ctx, expired))

	live := newTestRecord("providerX:live")
	s.Require().NoError(s.store.Create(ctx, live))

	out, err := s.store.ListRetentionExpired(ctx, now, 100)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("providerX:expired", out[0].CanonicalID)
}

func (s *PostgresStoreSuite) TestListNotificationOverdue() {
	ctx := context.Background()
	now := time.Now().UTC()

	overdue := newTestRecord("providerX:overdue")
	enrichedAt := now.Add(-40 * 24 * time.Hour)
	due := now.Add(-10 * 24 * time.Hour)
	overdue.Stage = domain.StageRevealed
	overdue.EnrichedAt = &enrichedAt
	overdue.NotificationDueAt = &due
	s.Require().NoError(s.store.Create(ctx, overdue))

	notified := newTestRecord("providerX:notified")
	notified.Stage = domain.StageRevealed
	notified.EnrichedAt = &enrichedAt
	notified.NotificationDueAt = &due
	notified.NotificationSent = true
	s.Require().NoError(s.store.Create(ctx, notified))

	pending := newTestRecord("providerX:pending")
	futureDue := now.Add(10 * 24 * time.Hour)
	pending.Stage = domain.StageRevealed
	pending.EnrichedAt = &enrichedAt
	pending.NotificationDueAt = &futureDue
	s.Require().NoError(s.store.Create(ctx, pending))

	out, err := s.store.ListNotificationOverdue(ctx, now, 100)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("providerX:overdue", out[0].CanonicalID)
}

// TestConcurrentUpdates verifies that of N writers holding the same version,
// exactly one wins; the rest observe a conflict.
func (s *PostgresStoreSuite) TestConcurrentUpdates() {
	ctx := context.Background()
	record := newTestRecord("providerX:1")
	s.Require().NoError(s.store.Create(ctx, record))

	const writers = 20
	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidate := record.Clone()
			candidate.Payload = []byte("contender")
			switch err := s.store.Update(ctx, candidate); {
			case err == nil:
				successCount.Add(1)
			default:
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one update should win")
	s.Equal(int32(writers-1), conflictCount.Load())

	got, err := s.store.Get(ctx, record.CanonicalID)
	s.Require().NoError(err)
	s.Equal(int64(2), got.Version)
}
