// Package audit is the append-only, tamper-evident trail of every policy
// decision and state transition. Redaction happens inside Append, never at
// read time and never left to callers.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"talentgate/internal/platform/metrics"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/requestcontext"
)

// Logger appends redacted entries to the store and optionally mirrors them
// to an async sink (Kafka) via a buffered channel so request paths never
// block on a broker.
type Logger struct {
	store   Store
	mirror  chan Entry
	logger  *slog.Logger
	metrics *metrics.Metrics

	// writeFailures counts entries that could not be persisted. A nonzero
	// value means the trail has gaps and is surfaced as a health signal.
	writeFailures atomic.Int64
}

type Option func(*Logger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithMirrorBuffer enables the async mirror channel consumed by a Worker.
func WithMirrorBuffer(size int) Option {
	return func(l *Logger) {
		l.mirror = make(chan Entry, size)
	}
}

// NewLogger creates the audit logger over a store.
func NewLogger(store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}

	l := &Logger{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append redacts and persists one entry, returning its sequence ID. The
// write is synchronous: when it returns without error, the entry is durable.
func (l *Logger) Append(ctx context.Context, entry Entry) (int64, error) {
	if !entry.EventType.IsValid() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown audit event type")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	entry.Context = redactContext(entry.Context)

	seq, err := l.store.Append(ctx, entry)
	if err != nil {
		l.writeFailures.Add(1)
		if l.metrics != nil {
			l.metrics.AuditWriteFailures.Inc()
		}
		l.logger.Error("audit append failed, trail has a gap", "event_type", entry.EventType, "error", err)
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "audit storage failure")
	}
	entry.SequenceID = seq

	if l.mirror != nil {
		select {
		case l.mirror <- entry:
		default:
			l.logger.Warn("audit mirror buffer full, dropping mirrored copy", "sequence_id", seq)
		}
	}
	return seq, nil
}

// ExportBySequence returns redacted entries within a sequence window.
func (l *Logger) ExportBySequence(ctx context.Context, fromSeq, toSeq int64, limit int) ([]Entry, error) {
	if fromSeq > toSeq {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sequence window is inverted")
	}
	entries, err := l.store.RangeBySequence(ctx, fromSeq, toSeq, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit storage failure")
	}
	return entries, nil
}

// ExportByTime returns redacted entries within a timestamp window.
func (l *Logger) ExportByTime(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	if !from.Before(to) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "time window is inverted")
	}
	entries, err := l.store.RangeByTime(ctx, from, to, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit storage failure")
	}
	return entries, nil
}

// Mirror exposes the async mirror channel for the Worker. Nil when
// mirroring is not configured.
func (l *Logger) Mirror() <-chan Entry {
	return l.mirror
}

// Healthy reports whether every audit write so far has been persisted.
func (l *Logger) Healthy() bool {
	return l.writeFailures.Load() == 0
}
