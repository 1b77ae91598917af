// Package scheduler runs the background sweep enforcing retention lifetimes
// and the mandatory-notification deadline. It coordinates with request
// handlers only through the profile store's versioned writes: if a record
// changed between scan and write, the sweep re-reads and re-evaluates
// instead of overwriting.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"talentgate/internal/audit"
	"talentgate/internal/domain"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/profile/store"
	"talentgate/pkg/platform/sentinel"
	"talentgate/pkg/requestcontext"
)

// casAttempts bounds per-record re-evaluation when a sweep write loses a
// race. Losing repeatedly just defers the record to the next sweep.
const casAttempts = 3

// defaultBatchSize caps how many records one sweep processes per scan.
const defaultBatchSize = 500

// Auditor records tombstone and deletion events. Satisfied by audit.Logger.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) (int64, error)
}

type Sweeper struct {
	store     store.Store
	auditor   Auditor
	interval  time.Duration
	batchSize int
	tracer    trace.Tracer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		s.batchSize = n
	}
}

// New creates a Sweeper. Interval governs the Run loop; RunOnce can be
// called directly in tests and ops tooling.
func New(st store.Store, auditor Auditor, interval time.Duration, opts ...Option) (*Sweeper, error) {
	if st == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("auditor is required")
	}

	s := &Sweeper{
		store:     st,
		auditor:   auditor,
		interval:  interval,
		batchSize: defaultBatchSize,
		tracer:    otel.Tracer("talentgate/scheduler"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now()); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one idempotent sweep at the given time. The tombstone
// scan runs before the retention scan, so a record that is both overdue for
// notification and past retention is tombstoned first and then deleted; the
// shorter of the two timers governs final deletion.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.RunOnce")
	defer span.End()
	ctx = requestcontext.WithTime(ctx, now)

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := s.sweepNotificationDeadlines(ctx, now); err != nil {
		return fmt.Errorf("notification sweep: %w", err)
	}
	if err := s.sweepRetention(ctx, now); err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	return nil
}

// sweepNotificationDeadlines tombstones enriched records whose notification
// deadline lapsed unsent. Only the sweep ever sets StageTombstoned.
func (s *Sweeper) sweepNotificationDeadlines(ctx context.Context, now time.Time) error {
	overdue, err := s.store.ListNotificationOverdue(ctx, now, s.batchSize)
	if err != nil {
		return err
	}

	for _, candidate := range overdue {
		if err := s.tombstone(ctx, candidate, now); err != nil {
			s.logger.Error("tombstone failed", "canonical_id", candidate.CanonicalID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) tombstone(ctx context.Context, candidate *domain.ProfileRecord, now time.Time) error {
	record := candidate
	for attempt := 0; attempt < casAttempts; attempt++ {
		// Re-evaluate against current state: a notification sent between
		// scan and write must cancel the tombstone.
		if record.Stage == domain.StageTombstoned || !record.Enriched() || !record.NotificationOverdue(now) {
			return nil
		}

		record.Stage = domain.StageTombstoned
		record.Payload = domain.TombstoneMarker
		err := s.store.Update(ctx, record)
		if err == nil {
			if s.metrics != nil {
				s.metrics.Tombstones.Inc()
			}
			s.auditTransition(ctx, audit.EventTombstone, record, "notification deadline missed")
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil // already deleted
			}
			return err
		}

		record, err = s.store.Get(ctx, candidate.CanonicalID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	return fmt.Errorf("record %q kept changing during tombstone", candidate.CanonicalID)
}

// sweepRetention hard-deletes records past their retention lifetime: payload
// wiped with the row, deletion audited.
func (s *Sweeper) sweepRetention(ctx context.Context, now time.Time) error {
	expired, err := s.store.ListRetentionExpired(ctx, now, s.batchSize)
	if err != nil {
		return err
	}

	for _, candidate := range expired {
		if err := s.hardDelete(ctx, candidate, now); err != nil {
			s.logger.Error("retention delete failed", "canonical_id", candidate.CanonicalID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) hardDelete(ctx context.Context, candidate *domain.ProfileRecord, now time.Time) error {
	record := candidate
	for attempt := 0; attempt < casAttempts; attempt++ {
		if !record.RetentionExpired(now) {
			return nil
		}

		err := s.store.Delete(ctx, record.CanonicalID, record.Version)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RetentionDeletes.Inc()
			}
			s.auditTransition(ctx, audit.EventDelete, record, "retention lifetime elapsed")
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return err
		}

		record, err = s.store.Get(ctx, candidate.CanonicalID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	return fmt.Errorf("record %q kept changing during delete", candidate.CanonicalID)
}

func (s *Sweeper) auditTransition(ctx context.Context, eventType audit.EventType, record *domain.ProfileRecord, reason string) {
	_, err := s.auditor.Append(ctx, audit.Entry{
		EventType: eventType,
		Provider:  record.Provider,
		Region:    record.Region,
		Decision:  string(eventType),
		Context: map[string]string{
			"canonical_id": record.CanonicalID,
			"reason":       reason,
		},
	})
	if err != nil {
		// The transition already happened; the audit gap is surfaced through
		// the logger's health signal.
		s.logger.Error("sweep transition not audited", "canonical_id", record.CanonicalID, "error", err)
	}
}
