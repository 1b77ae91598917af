package domain

import "time"

// RegionPolicy is the immutable per-region policy configuration. Loaded once
// at startup and passed explicitly into the policy engine and scheduler; no
// ambient lookup.
type RegionPolicy struct {
	// RetentionDays bounds how long any record from this region may be kept.
	RetentionDays int
	// NotificationRequired enables mandatory-notification deadline
	// enforcement (tombstoning on a missed deadline).
	NotificationRequired bool
	// NotificationWindow is the legal window between enrichment and subject
	// notification. Ignored unless NotificationRequired.
	NotificationWindow time.Duration
	// ConsentRequiredForReveal forbids reveals without a consent flag.
	ConsentRequiredForReveal bool
}

// Retention returns the retention lifetime as a duration.
func (p RegionPolicy) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

// PolicyTable maps ISO region codes to their policies. Unknown regions fall
// back to Default, which callers should configure conservatively.
type PolicyTable struct {
	Regions map[string]RegionPolicy
	Default RegionPolicy
}

// ForRegion looks up the policy for a region code.
func (t PolicyTable) ForRegion(region string) RegionPolicy {
	if p, ok := t.Regions[region]; ok {
		return p
	}
	return t.Default
}

// BucketConfig configures one provider's token bucket.
type BucketConfig struct {
	Capacity   float64
	RefillRate float64 // tokens per second
}

// BreakerConfig configures one provider's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// ProviderLimits is the immutable per-provider throttling configuration.
type ProviderLimits struct {
	Buckets        map[string]BucketConfig
	Breakers       map[string]BreakerConfig
	DefaultBucket  BucketConfig
	DefaultBreaker BreakerConfig
	// OutcomeTimeout bounds how long the limiter waits for RecordOutcome
	// after admitting a call before treating it as failed.
	OutcomeTimeout time.Duration
}

// BucketFor returns the bucket configuration for a provider.
func (l ProviderLimits) BucketFor(provider string) BucketConfig {
	if c, ok := l.Buckets[provider]; ok {
		return c
	}
	return l.DefaultBucket
}

// BreakerFor returns the breaker configuration for a provider.
func (l ProviderLimits) BreakerFor(provider string) BreakerConfig {
	if c, ok := l.Breakers[provider]; ok {
		return c
	}
	return l.DefaultBreaker
}
