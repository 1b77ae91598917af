package audit

import (
	"context"
	"time"
)

// Store persists audit entries. Append-only: no update or delete exists on
// this interface, and none may be added.
type Store interface {
	// Append persists the entry and returns its assigned sequence ID.
	Append(ctx context.Context, entry Entry) (int64, error)

	// RangeBySequence returns entries with fromSeq <= SequenceID <= toSeq in
	// sequence order, up to limit.
	RangeBySequence(ctx context.Context, fromSeq, toSeq int64, limit int) ([]Entry, error)

	// RangeByTime returns entries with from <= Timestamp < to in sequence
	// order, up to limit.
	RangeByTime(ctx context.Context, from, to time.Time, limit int) ([]Entry, error)
}
