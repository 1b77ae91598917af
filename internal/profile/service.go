// Package profile is the thin coordinator between policy decisions and the
// record store. The policy engine returns instructions; this service applies
// them atomically through versioned compare-and-swap writes, retrying a
// bounded number of times before surfacing a conflict.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"talentgate/internal/domain"
	"talentgate/internal/identity"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/profile/crypto"
	"talentgate/internal/profile/store"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/sentinel"
	"talentgate/pkg/requestcontext"
)

// casAttempts bounds internal retries on version conflicts before the
// conflict is surfaced to the caller.
const casAttempts = 3

type Service struct {
	store    store.Store
	sealer   *crypto.Sealer
	policies domain.PolicyTable
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates the profile coordinator.
func New(st store.Store, sealer *crypto.Sealer, policies domain.PolicyTable, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("payload sealer is required")
	}

	svc := &Service{
		store:    st,
		sealer:   sealer,
		policies: policies,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Get returns the record for a canonical ID.
func (s *Service) Get(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error) {
	record, err := s.store.Get(ctx, canonicalID)
	if err != nil {
		return nil, translate(err)
	}
	return record, nil
}

// RecordDiscovery registers a provider sighting. Repeated sightings collapse
// onto the existing record via the canonical identifier; the payload is
// refreshed but lifecycle fields are untouched. A tombstoned record stays
// inert: a new discovery cycle for that subject begins only after retention
// deletes the tombstone row.
func (s *Service) RecordDiscovery(ctx context.Context, provider, region, sourceURL, providerID string, payload []byte) (*domain.ProfileRecord, error) {
	canonicalID, err := identity.Resolve(provider, sourceURL, providerID)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not seal payload")
	}

	now := requestcontext.Now(ctx)
	policy := s.policies.ForRegion(region)

	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.store.Get(ctx, canonicalID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			record := &domain.ProfileRecord{
				CanonicalID:        canonicalID,
				Provider:           provider,
				Region:             region,
				Stage:              domain.StageDiscovered,
				DiscoveredAt:       now,
				RetentionExpiresAt: now.Add(policy.Retention()),
				Payload:            sealed,
			}
			if createErr := s.store.Create(ctx, record); createErr != nil {
				if errors.Is(createErr, sentinel.ErrConflict) {
					s.countRetry()
					continue // lost a create race; re-read
				}
				return nil, translate(createErr)
			}
			return record, nil

		case err != nil:
			return nil, translate(err)
		}

		if current.Stage == domain.StageTombstoned {
			return nil, dErrors.New(dErrors.CodeConflict, "record is tombstoned until retention expiry")
		}

		current.Payload = sealed
		if updateErr := s.store.Update(ctx, current); updateErr != nil {
			if errors.Is(updateErr, sentinel.ErrConflict) {
				s.countRetry()
				continue
			}
			return nil, translate(updateErr)
		}
		return current, nil
	}

	return nil, dErrors.New(dErrors.CodeConflict, "discovery lost repeated write races")
}

// ApplyReveal records a successful enrichment per the policy engine's
// obligations: EnrichedAt is set on the first reveal only, and the
// notification deadline starts when the region enforces one. Tombstoned
// records reject reveals.
func (s *Service) ApplyReveal(ctx context.Context, canonicalID string, payload []byte, obligations domain.RevealObligations) (*domain.ProfileRecord, error) {
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not seal payload")
	}

	now := requestcontext.Now(ctx)

	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.store.Get(ctx, canonicalID)
		if err != nil {
			return nil, translate(err)
		}
		if current.Stage == domain.StageTombstoned {
			return nil, dErrors.New(dErrors.CodeDenied, "record is tombstoned")
		}

		current.Payload = sealed
		if obligations.SetEnrichedAt && !current.Enriched() {
			enrichedAt := now
			current.EnrichedAt = &enrichedAt
			current.Stage = domain.StageRevealed
			if obligations.NotificationWindow > 0 {
				due := enrichedAt.Add(obligations.NotificationWindow)
				current.NotificationDueAt = &due
			}
		}

		if updateErr := s.store.Update(ctx, current); updateErr != nil {
			if errors.Is(updateErr, sentinel.ErrConflict) {
				s.countRetry()
				continue
			}
			return nil, translate(updateErr)
		}
		return current, nil
	}

	return nil, dErrors.New(dErrors.CodeConflict, "reveal lost repeated write races")
}

// MarkNotificationSent records that the subject has been notified, stopping
// the deadline tombstone. Only enriched, non-tombstoned records qualify.
func (s *Service) MarkNotificationSent(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := s.store.Get(ctx, canonicalID)
		if err != nil {
			return nil, translate(err)
		}
		if current.Stage == domain.StageTombstoned {
			return nil, dErrors.New(dErrors.CodeConflict, "record is already tombstoned")
		}
		if !current.Enriched() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "record has not been enriched")
		}
		if current.NotificationSent {
			return current, nil
		}

		current.NotificationSent = true
		if updateErr := s.store.Update(ctx, current); updateErr != nil {
			if errors.Is(updateErr, sentinel.ErrConflict) {
				s.countRetry()
				continue
			}
			return nil, translate(updateErr)
		}
		return current, nil
	}

	return nil, dErrors.New(dErrors.CodeConflict, "notification update lost repeated write races")
}

func (s *Service) countRetry() {
	if s.metrics != nil {
		s.metrics.CASRetries.Inc()
	}
}

// translate maps store sentinels onto domain errors. Anything unexpected is
// a storage failure: surfaced, never swallowed, so compliance gating fails
// closed.
func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent write conflict")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "record in wrong state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "profile storage failure")
	}
}
