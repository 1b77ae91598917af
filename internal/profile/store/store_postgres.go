package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talentgate/internal/domain"
	"talentgate/pkg/platform/sentinel"
)

// PostgresStore persists profile records in PostgreSQL. Optimistic
// concurrency is a version column: every UPDATE and DELETE is conditioned on
// the version the caller read, and zero affected rows is reported as
// ErrConflict (or ErrNotFound when the row is gone).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed profile store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the profiles table. Called by provisioning and integration
// tests; production deployments run it as a migration.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	canonical_id         TEXT PRIMARY KEY,
	provider             TEXT NOT NULL,
	region               TEXT NOT NULL,
	stage                TEXT NOT NULL,
	discovered_at        TIMESTAMPTZ NOT NULL,
	enriched_at          TIMESTAMPTZ,
	notification_sent    BOOLEAN NOT NULL DEFAULT FALSE,
	notification_due_at  TIMESTAMPTZ,
	retention_expires_at TIMESTAMPTZ NOT NULL,
	payload              BYTEA,
	version              BIGINT NOT NULL DEFAULT 1,
	CONSTRAINT retention_after_discovery CHECK (retention_expires_at > discovered_at)
);
CREATE INDEX IF NOT EXISTS idx_profiles_retention ON profiles (retention_expires_at);
CREATE INDEX IF NOT EXISTS idx_profiles_notification
	ON profiles (notification_due_at)
	WHERE notification_due_at IS NOT NULL AND NOT notification_sent;
`

// EnsureSchema applies the table schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure profiles schema: %w", err)
	}
	return nil
}

const selectColumns = `canonical_id, provider, region, stage, discovered_at, enriched_at,
	notification_sent, notification_due_at, retention_expires_at, payload, version`

func (s *PostgresStore) Get(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE canonical_id = $1`, canonicalID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %q: %w", canonicalID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Create(ctx context.Context, record *domain.ProfileRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (
			canonical_id, provider, region, stage, discovered_at, enriched_at,
			notification_sent, notification_due_at, retention_expires_at, payload, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		ON CONFLICT (canonical_id) DO NOTHING`,
		record.CanonicalID, record.Provider, record.Region, string(record.Stage),
		record.DiscoveredAt, record.EnrichedAt, record.NotificationSent,
		record.NotificationDueAt, record.RetentionExpiresAt, record.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	// ON CONFLICT DO NOTHING reports zero affected rows on duplicates.
	if affected == 0 {
		return fmt.Errorf("profile %q: %w", record.CanonicalID, sentinel.ErrConflict)
	}
	record.Version = 1
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, record *domain.ProfileRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET
			provider = $2, region = $3, stage = $4, discovered_at = $5,
			enriched_at = $6, notification_sent = $7, notification_due_at = $8,
			retention_expires_at = $9, payload = $10, version = version + 1
		WHERE canonical_id = $1 AND version = $11`,
		record.CanonicalID, record.Provider, record.Region, string(record.Stage),
		record.DiscoveredAt, record.EnrichedAt, record.NotificationSent,
		record.NotificationDueAt, record.RetentionExpiresAt, record.Payload,
		record.Version,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if affected == 0 {
		return s.classifyMiss(ctx, record.CanonicalID)
	}
	record.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, canonicalID string, version int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE canonical_id = $1 AND version = $2`,
		canonicalID, version,
	)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if affected == 0 {
		return s.classifyMiss(ctx, canonicalID)
	}
	return nil
}

func (s *PostgresStore) ListRetentionExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ProfileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE retention_expires_at <= $1 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list retention expired: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) ListNotificationOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.ProfileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM profiles
		WHERE stage != $1
		  AND enriched_at IS NOT NULL
		  AND notification_due_at IS NOT NULL
		  AND notification_due_at <= $2
		  AND NOT notification_sent
		LIMIT $3`,
		string(domain.StageTombstoned), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification overdue: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classifyMiss distinguishes a vanished row from a version race.
func (s *PostgresStore) classifyMiss(ctx context.Context, canonicalID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM profiles WHERE canonical_id = $1`, canonicalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %q: %w", canonicalID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("classify write miss: %w", err)
	}
	return fmt.Errorf("profile %q: %w", canonicalID, sentinel.ErrConflict)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ProfileRecord, error) {
	var (
		record domain.ProfileRecord
		stage  string
	)
	err := row.Scan(
		&record.CanonicalID, &record.Provider, &record.Region, &stage,
		&record.DiscoveredAt, &record.EnrichedAt, &record.NotificationSent,
		&record.NotificationDueAt, &record.RetentionExpiresAt, &record.Payload,
		&record.Version,
	)
	if err != nil {
		return nil, err
	}
	record.Stage = domain.Stage(stage)
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*domain.ProfileRecord, error) {
	var out []*domain.ProfileRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}
