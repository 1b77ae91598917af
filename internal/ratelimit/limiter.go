// Package ratelimit admits external provider calls through a per-provider
// token bucket with a circuit breaker layered on top. The bucket alone does
// not protect against a provider failing fast, which would drain tokens
// pointlessly; the breaker stops calls to a failing dependency while still
// probing for recovery.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"talentgate/internal/domain"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/ratelimit/models"
	"talentgate/internal/ratelimit/store/bucket"
	"talentgate/pkg/requestcontext"
)

// Limiter governs admission per provider: token bucket first, breaker above
// it. Bucket state lives in the store (memory or Redis); breaker state is
// in-process, guarded by one mutex since there is one breaker per provider,
// not per request.
type Limiter struct {
	store  bucket.Store
	limits domain.ProviderLimits

	mu       sync.Mutex
	breakers map[string]*breaker
	// pending holds outcome deadlines for admitted calls. An outcome not
	// reported before its deadline counts as a failure, so a caller that
	// never reports cannot keep a broken provider looking healthy.
	pending map[string][]time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type breaker struct {
	state         models.BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a Limiter over the given bucket store and provider limits.
func New(store bucket.Store, limits domain.ProviderLimits, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("bucket store is required")
	}

	l := &Limiter{
		store:    store,
		limits:   limits,
		breakers: make(map[string]*breaker),
		pending:  make(map[string][]time.Time),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryAcquire admits, throttles, or rejects one provider call of the given
// cost. While the breaker is open it rejects without consuming tokens; the
// first call after the cooldown is admitted exactly once as a trial probe.
func (l *Limiter) TryAcquire(ctx context.Context, provider string, cost float64) (models.AcquireResult, error) {
	now := requestcontext.Now(ctx)
	cfg := l.limits.BreakerFor(provider)

	l.mu.Lock()
	l.expirePendingLocked(provider, now)
	b := l.breakerLocked(provider)

	switch b.state {
	case models.BreakerOpen:
		reopenAt := b.openedAt.Add(cfg.Cooldown)
		if now.Before(reopenAt) {
			l.mu.Unlock()
			return models.AcquireResult{Status: models.StatusOpen, RetryAfter: reopenAt.Sub(now)}, nil
		}
		// Cooldown elapsed: admit exactly one trial probe, no token charge.
		b.state = models.BreakerHalfOpen
		b.trialInFlight = true
		l.pending[provider] = append(l.pending[provider], now.Add(l.limits.OutcomeTimeout))
		l.setBreakerGauge(provider, b.state)
		l.mu.Unlock()
		l.logger.Info("breaker half-open, admitting trial", "provider", provider)
		return models.AcquireResult{Status: models.StatusAdmitted}, nil

	case models.BreakerHalfOpen:
		// A trial is already probing; everyone else waits for its outcome.
		l.mu.Unlock()
		return models.AcquireResult{Status: models.StatusOpen, RetryAfter: cfg.Cooldown}, nil
	}
	l.mu.Unlock()

	state, admitted, err := l.store.Acquire(ctx, provider, l.limits.BucketFor(provider), cost, now)
	if err != nil {
		return models.AcquireResult{}, fmt.Errorf("acquire tokens for %s: %w", provider, err)
	}
	if !admitted {
		if l.metrics != nil {
			l.metrics.Throttled.WithLabelValues(provider).Inc()
		}
		wait := time.Duration((cost - state.Tokens) / l.limits.BucketFor(provider).RefillRate * float64(time.Second))
		return models.AcquireResult{Status: models.StatusThrottled, RetryAfter: wait}, nil
	}

	l.mu.Lock()
	l.pending[provider] = append(l.pending[provider], now.Add(l.limits.OutcomeTimeout))
	l.mu.Unlock()
	return models.AcquireResult{Status: models.StatusAdmitted}, nil
}

// RecordOutcome reports the result of an admitted provider call. Tokens
// already spent are never refunded, even on failure or caller cancellation,
// so a cancel-and-retry loop cannot bypass throttling.
func (l *Limiter) RecordOutcome(ctx context.Context, provider string, success bool) {
	now := requestcontext.Now(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.expirePendingLocked(provider, now)
	if queue := l.pending[provider]; len(queue) > 0 {
		l.pending[provider] = queue[1:]
	}

	b := l.breakerLocked(provider)
	if success {
		l.breakerSuccessLocked(provider, b)
	} else {
		l.breakerFailureLocked(provider, b, now)
	}
}

// Snapshot returns bucket and breaker state for one provider, for the policy
// engine's decision context and for operational visibility.
func (l *Limiter) Snapshot(ctx context.Context, provider string) (models.ProviderSnapshot, error) {
	now := requestcontext.Now(ctx)

	state, err := l.store.Snapshot(ctx, provider, l.limits.BucketFor(provider), now)
	if err != nil {
		return models.ProviderSnapshot{}, fmt.Errorf("snapshot bucket for %s: %w", provider, err)
	}

	l.mu.Lock()
	breakerState := l.breakerLocked(provider).state
	l.mu.Unlock()

	return models.ProviderSnapshot{Provider: provider, Bucket: state, Breaker: breakerState}, nil
}

func (l *Limiter) breakerLocked(provider string) *breaker {
	b := l.breakers[provider]
	if b == nil {
		b = &breaker{state: models.BreakerClosed}
		l.breakers[provider] = b
	}
	return b
}

// expirePendingLocked converts admitted calls whose outcome window lapsed
// into breaker failures. Must be called while holding l.mu.
func (l *Limiter) expirePendingLocked(provider string, now time.Time) {
	queue := l.pending[provider]
	expired := 0
	for expired < len(queue) && !now.Before(queue[expired]) {
		expired++
	}
	if expired == 0 {
		return
	}
	l.pending[provider] = queue[expired:]

	b := l.breakerLocked(provider)
	l.logger.Warn("provider outcomes never reported, counting as failures",
		"provider", provider, "count", expired)
	for range expired {
		l.breakerFailureLocked(provider, b, now)
	}
}

func (l *Limiter) breakerSuccessLocked(provider string, b *breaker) {
	b.failures = 0
	if b.state == models.BreakerHalfOpen {
		b.state = models.BreakerClosed
		b.trialInFlight = false
		l.setBreakerGauge(provider, b.state)
		l.logger.Info("breaker closed after successful trial", "provider", provider)
	}
}

func (l *Limiter) breakerFailureLocked(provider string, b *breaker, now time.Time) {
	switch b.state {
	case models.BreakerHalfOpen:
		b.state = models.BreakerOpen
		b.openedAt = now
		b.trialInFlight = false
		l.setBreakerGauge(provider, b.state)
		l.logger.Warn("breaker trial failed, reopening", "provider", provider)
	case models.BreakerClosed:
		b.failures++
		if b.failures >= l.limits.BreakerFor(provider).FailureThreshold {
			b.state = models.BreakerOpen
			b.openedAt = now
			l.setBreakerGauge(provider, b.state)
			l.logger.Warn("breaker opened", "provider", provider, "failures", b.failures)
		}
	}
}

func (l *Limiter) setBreakerGauge(provider string, state models.BreakerState) {
	if l.metrics == nil {
		return
	}
	var v float64
	switch state {
	case models.BreakerOpen:
		v = 1
	case models.BreakerHalfOpen:
		v = 2
	}
	l.metrics.BreakerState.WithLabelValues(provider).Set(v)
}
