package domain

import "time"

// Stage is the lifecycle stage of a profile record.
type Stage string

const (
	// StageDiscovered: light record from a search hit, no personal detail yet.
	StageDiscovered Stage = "discovered"
	// StageRevealed: full record after a successful enrichment.
	StageRevealed Stage = "revealed"
	// StageTombstoned: inert record after a missed notification deadline.
	// Only the scheduler sweep may set this stage.
	StageTombstoned Stage = "tombstoned"
)

// IsValid checks if the stage is one of the supported enum values.
func (s Stage) IsValid() bool {
	switch s {
	case StageDiscovered, StageRevealed, StageTombstoned:
		return true
	}
	return false
}

// TombstoneMarker replaces the payload when a record is tombstoned. The row
// is retained until retention expiry so the audit trail can explain why the
// record became unusable.
var TombstoneMarker = []byte("tombstone:v1")

// ProfileRecord is one entity per real-world subject, keyed by canonical ID.
// Payload is an opaque encrypted blob whose shape is owned by the caller.
//
// Invariants:
//   - NotificationDueAt is set iff EnrichedAt is set and the region enforces
//     the notification deadline.
//   - Stage == StageTombstoned implies Payload == TombstoneMarker.
//   - RetentionExpiresAt is always set and strictly after DiscoveredAt.
type ProfileRecord struct {
	CanonicalID        string
	Provider           string
	Region             string
	Stage              Stage
	DiscoveredAt       time.Time
	EnrichedAt         *time.Time
	NotificationSent   bool
	NotificationDueAt  *time.Time
	RetentionExpiresAt time.Time
	Payload            []byte

	// Version supports optimistic concurrency: stores reject writes whose
	// version does not match the stored one.
	Version int64
}

// Enriched reports whether the record has been through a successful reveal.
func (r *ProfileRecord) Enriched() bool {
	return r.EnrichedAt != nil
}

// NotificationOverdue reports whether the mandatory-notification deadline has
// passed without the notification being sent.
func (r *ProfileRecord) NotificationOverdue(now time.Time) bool {
	return r.NotificationDueAt != nil && !r.NotificationSent && !now.Before(*r.NotificationDueAt)
}

// RetentionExpired reports whether the record is past its retention lifetime.
func (r *ProfileRecord) RetentionExpired(now time.Time) bool {
	return !now.Before(r.RetentionExpiresAt)
}

// Clone returns a deep copy so store snapshots cannot be mutated by callers.
func (r *ProfileRecord) Clone() *ProfileRecord {
	out := *r
	if r.EnrichedAt != nil {
		t := *r.EnrichedAt
		out.EnrichedAt = &t
	}
	if r.NotificationDueAt != nil {
		t := *r.NotificationDueAt
		out.NotificationDueAt = &t
	}
	out.Payload = append([]byte(nil), r.Payload...)
	return &out
}
