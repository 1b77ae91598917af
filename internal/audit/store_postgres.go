package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists audit entries in PostgreSQL. The sequence ID is a
// BIGSERIAL, so ordering is assigned by the database and survives restarts.
// The store intentionally has no UPDATE or DELETE statements.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the audit_entries table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	sequence_id BIGSERIAL PRIMARY KEY,
	id          UUID NOT NULL UNIQUE,
	event_type  TEXT NOT NULL,
	provider    TEXT NOT NULL,
	region      TEXT NOT NULL,
	decision    TEXT NOT NULL,
	context     JSONB,
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries (timestamp);
`

// EnsureSchema applies the table schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) (int64, error) {
	var contextJSON []byte
	if len(entry.Context) > 0 {
		var err error
		contextJSON, err = json.Marshal(entry.Context)
		if err != nil {
			return 0, fmt.Errorf("marshal audit context: %w", err)
		}
	}

	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_entries (id, event_type, provider, region, decision, context, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING sequence_id`,
		entry.ID, string(entry.EventType), entry.Provider, entry.Region,
		entry.Decision, contextJSON, entry.Timestamp,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) RangeBySequence(ctx context.Context, fromSeq, toSeq int64, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence_id, id, event_type, provider, region, decision, context, timestamp
		FROM audit_entries
		WHERE sequence_id >= $1 AND sequence_id <= $2
		ORDER BY sequence_id
		LIMIT $3`,
		fromSeq, toSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("range audit by sequence: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) RangeByTime(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence_id, id, event_type, provider, region, decision, context, timestamp
		FROM audit_entries
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY sequence_id
		LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("range audit by time: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			entry       Entry
			eventType   string
			id          uuid.UUID
			contextJSON []byte
		)
		if err := rows.Scan(&entry.SequenceID, &id, &eventType, &entry.Provider,
			&entry.Region, &entry.Decision, &contextJSON, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id
		entry.EventType = EventType(eventType)
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("unmarshal audit context: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
