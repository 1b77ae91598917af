package models

import "time"

// AcquireStatus is the outcome of a TryAcquire call.
type AcquireStatus string

const (
	// StatusAdmitted: tokens were available and have been consumed.
	StatusAdmitted AcquireStatus = "admitted"
	// StatusThrottled: the bucket is empty; retry after the indicated delay.
	StatusThrottled AcquireStatus = "throttled"
	// StatusOpen: the provider's circuit breaker is open; no tokens consumed.
	StatusOpen AcquireStatus = "open"
)

// AcquireResult carries the admission decision for one provider call.
type AcquireResult struct {
	Status AcquireStatus
	// RetryAfter estimates when enough tokens will have refilled
	// (throttled) or when the breaker cooldown elapses (open).
	RetryAfter time.Duration
}

// Admitted reports whether the caller may proceed.
func (r AcquireResult) Admitted() bool {
	return r.Status == StatusAdmitted
}

// BreakerState is the circuit breaker state for one provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BucketState is a snapshot of one provider's token bucket.
type BucketState struct {
	Tokens     float64
	Capacity   float64
	LastRefill time.Time
}

// ProviderSnapshot combines bucket and breaker state for observability and
// for the policy engine's decision context.
type ProviderSnapshot struct {
	Provider string
	Bucket   BucketState
	Breaker  BreakerState
}
