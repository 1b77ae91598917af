package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"talentgate/internal/domain"
	"talentgate/internal/ratelimit/models"
	"talentgate/internal/ratelimit/store/bucket"
	"talentgate/pkg/requestcontext"
)

const testProvider = "providerX"

func testLimits() domain.ProviderLimits {
	return domain.ProviderLimits{
		DefaultBucket:  domain.BucketConfig{Capacity: 10, RefillRate: 1},
		DefaultBreaker: domain.BreakerConfig{FailureThreshold: 3, Cooldown: 30 * time.Second},
		OutcomeTimeout: 2 * time.Minute,
	}
}

type LimiterSuite struct {
	suite.Suite
	limiter *Limiter
	base    time.Time
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	limiter, err := New(bucket.NewInMemoryStore(), testLimits())
	s.Require().NoError(err)
	s.limiter = limiter
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

// at returns a context frozen at base+offset so refill is fully controlled.
func (s *LimiterSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.base.Add(offset))
}

func (s *LimiterSuite) TestTokenConservation() {
	ctx := s.at(0)

	for i := range 5 {
		result, err := s.limiter.TryAcquire(ctx, testProvider, 2)
		s.Require().NoError(err, "acquire %d", i)
		s.Equal(models.StatusAdmitted, result.Status)
	}

	snap, err := s.limiter.Snapshot(ctx, testProvider)
	s.Require().NoError(err)
	s.InDelta(0.0, snap.Bucket.Tokens, 1e-9, "5 admits of cost 2 must drain exactly 10 tokens")

	result, err := s.limiter.TryAcquire(ctx, testProvider, 2)
	s.Require().NoError(err)
	s.Equal(models.StatusThrottled, result.Status)
	s.Equal(2*time.Second, result.RetryAfter)
}

func (s *LimiterSuite) TestRefillOverTime() {
	ctx := s.at(0)
	for range 10 {
		_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
		s.Require().NoError(err)
	}

	// 3 seconds at 1 token/s refills 3 tokens.
	later := s.at(3 * time.Second)
	for range 3 {
		result, err := s.limiter.TryAcquire(later, testProvider, 1)
		s.Require().NoError(err)
		s.Equal(models.StatusAdmitted, result.Status)
	}
	result, err := s.limiter.TryAcquire(later, testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusThrottled, result.Status)
}

func (s *LimiterSuite) TestRefillCapsAtCapacity() {
	ctx := s.at(0)
	_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
	s.Require().NoError(err)

	snap, err := s.limiter.Snapshot(s.at(time.Hour), testProvider)
	s.Require().NoError(err)
	s.InDelta(10.0, snap.Bucket.Tokens, 1e-9)
}

func (s *LimiterSuite) TestBreakerTripAndRecovery() {
	ctx := s.at(0)

	// Threshold consecutive failures open the breaker.
	for range 3 {
		_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
		s.Require().NoError(err)
		s.limiter.RecordOutcome(ctx, testProvider, false)
	}

	result, err := s.limiter.TryAcquire(s.at(time.Second), testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, result.Status)
	s.Equal(29*time.Second, result.RetryAfter)

	// First call after cooldown is admitted exactly once as the trial.
	trialCtx := s.at(31 * time.Second)
	result, err = s.limiter.TryAcquire(trialCtx, testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusAdmitted, result.Status)

	// Concurrent callers during the trial are still rejected.
	result, err = s.limiter.TryAcquire(trialCtx, testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, result.Status)

	// Trial success closes the breaker.
	s.limiter.RecordOutcome(trialCtx, testProvider, true)
	result, err = s.limiter.TryAcquire(trialCtx, testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusAdmitted, result.Status)

	snap, err := s.limiter.Snapshot(trialCtx, testProvider)
	s.Require().NoError(err)
	s.Equal(models.BreakerClosed, snap.Breaker)
}

func (s *LimiterSuite) TestBreakerTrialFailureReopens() {
	ctx := s.at(0)
	for range 3 {
		_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
		s.Require().NoError(err)
		s.limiter.RecordOutcome(ctx, testProvider, false)
	}

	trialCtx := s.at(31 * time.Second)
	result, err := s.limiter.TryAcquire(trialCtx, testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusAdmitted, result.Status)

	s.limiter.RecordOutcome(trialCtx, testProvider, false)

	// Back to open; cooldown restarts from the trial failure.
	result, err = s.limiter.TryAcquire(s.at(45*time.Second), testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, result.Status)

	result, err = s.limiter.TryAcquire(s.at(62*time.Second), testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusAdmitted, result.Status)
}

func (s *LimiterSuite) TestSuccessResetsFailureCount() {
	ctx := s.at(0)
	for range 2 {
		_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
		s.Require().NoError(err)
		s.limiter.RecordOutcome(ctx, testProvider, false)
	}

	_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
	s.Require().NoError(err)
	s.limiter.RecordOutcome(ctx, testProvider, true)

	// Two more failures stay under the threshold after the reset.
	for range 2 {
		_, err := s.limiter.TryAcquire(ctx, testProvider, 1)
		s.Require().NoError(err)
		s.limiter.RecordOutcome(ctx, testProvider, false)
	}

	result, err := s.limiter.TryAcquire(ctx, testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusAdmitted, result.Status)
}

func (s *LimiterSuite) TestUnreportedOutcomesCountAsFailures() {
	ctx := s.at(0)
	for range 3 {
		result, err := s.limiter.TryAcquire(ctx, testProvider, 1)
		s.Require().NoError(err)
		s.Require().Equal(models.StatusAdmitted, result.Status)
	}

	// No outcomes within OutcomeTimeout: the next acquire sees three lapsed
	// calls, trips the breaker, and is rejected.
	result, err := s.limiter.TryAcquire(s.at(3*time.Minute), testProvider, 1)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, result.Status)
}

func TestLimiter_RequiresStore(t *testing.T) {
	_, err := New(nil, testLimits())
	require.Error(t, err)
}
