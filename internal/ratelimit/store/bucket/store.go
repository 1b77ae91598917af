package bucket

import (
	"context"
	"time"

	"talentgate/internal/domain"
	"talentgate/internal/ratelimit/models"
)

// Store holds token-bucket state per provider key. Implementations refill
// continuously from elapsed time and take tokens atomically, so two
// concurrent acquires can never jointly overdraw a bucket.
type Store interface {
	// Acquire applies elapsed-time refill, then takes cost tokens if
	// available. It returns the post-refill state and whether the take
	// succeeded. On failure the state is returned unmodified so callers can
	// compute a retry estimate.
	Acquire(ctx context.Context, key string, cfg domain.BucketConfig, cost float64, now time.Time) (models.BucketState, bool, error)

	// Snapshot returns the refilled state without consuming tokens.
	Snapshot(ctx context.Context, key string, cfg domain.BucketConfig, now time.Time) (models.BucketState, error)
}

// refill advances a bucket state to now, capping at capacity. Shared by
// store implementations so the arithmetic cannot drift between backends.
func refill(state models.BucketState, cfg domain.BucketConfig, now time.Time) models.BucketState {
	if state.LastRefill.IsZero() {
		return models.BucketState{Tokens: cfg.Capacity, Capacity: cfg.Capacity, LastRefill: now}
	}
	elapsed := now.Sub(state.LastRefill)
	if elapsed <= 0 {
		state.Capacity = cfg.Capacity
		return state
	}
	state.Tokens += elapsed.Seconds() * cfg.RefillRate
	if state.Tokens > cfg.Capacity {
		state.Tokens = cfg.Capacity
	}
	state.Capacity = cfg.Capacity
	state.LastRefill = now
	return state
}
