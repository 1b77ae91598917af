package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit entries. The set is closed: exports and
// downstream consumers rely on it.
type EventType string

const (
	EventSearch       EventType = "search"
	EventReveal       EventType = "reveal"
	EventDeny         EventType = "deny"
	EventTombstone    EventType = "tombstone"
	EventDelete       EventType = "delete"
	EventNotification EventType = "notification"
)

// IsValid checks if the event type is one of the supported enum values.
func (t EventType) IsValid() bool {
	switch t {
	case EventSearch, EventReveal, EventDeny, EventTombstone, EventDelete, EventNotification:
		return true
	}
	return false
}

// Entry is one append-only audit record. Immutable once written: the store
// exposes no update or delete. Context is redacted inside the logger before
// persistence, so a caller bug cannot leak personal data into the trail.
type Entry struct {
	SequenceID int64             `json:"sequence_id"`
	ID         uuid.UUID         `json:"id"`
	EventType  EventType         `json:"event_type"`
	Provider   string            `json:"provider"`
	Region     string            `json:"region"`
	Decision   string            `json:"decision"`
	Context    map[string]string `json:"context,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
