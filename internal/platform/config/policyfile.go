package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"talentgate/internal/domain"
)

// policyFile is the on-disk JSON shape for policy tables and provider
// limits. The engine consumes the immutable domain structs, never this file.
type policyFile struct {
	Regions               map[string]regionEntry   `json:"regions"`
	DefaultRegion         regionEntry              `json:"default_region"`
	Providers             map[string]providerEntry `json:"providers"`
	DefaultProvider       providerEntry            `json:"default_provider"`
	OutcomeTimeoutSeconds int                      `json:"outcome_timeout_seconds"`
}

type regionEntry struct {
	RetentionDays            int  `json:"retention_days"`
	NotificationRequired     bool `json:"notification_required"`
	NotificationWindowDays   int  `json:"notification_window_days"`
	ConsentRequiredForReveal bool `json:"consent_required_for_reveal"`
}

type providerEntry struct {
	Capacity         float64 `json:"capacity"`
	RefillPerSecond  float64 `json:"refill_per_second"`
	FailureThreshold int     `json:"failure_threshold"`
	CooldownSeconds  int     `json:"cooldown_seconds"`
}

// LoadPolicies reads the policy file and returns the immutable policy table
// and provider limits. Missing file path returns conservative defaults so a
// dev server can start without configuration.
func LoadPolicies(path string) (domain.PolicyTable, domain.ProviderLimits, error) {
	if path == "" {
		return defaultPolicyTable(), defaultProviderLimits(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PolicyTable{}, domain.ProviderLimits{}, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return domain.PolicyTable{}, domain.ProviderLimits{}, fmt.Errorf("parse policy file: %w", err)
	}

	table := domain.PolicyTable{
		Regions: make(map[string]domain.RegionPolicy, len(pf.Regions)),
		Default: toRegionPolicy(pf.DefaultRegion),
	}
	for region, entry := range pf.Regions {
		table.Regions[region] = toRegionPolicy(entry)
	}

	limits := domain.ProviderLimits{
		Buckets:        make(map[string]domain.BucketConfig, len(pf.Providers)),
		Breakers:       make(map[string]domain.BreakerConfig, len(pf.Providers)),
		DefaultBucket:  toBucketConfig(pf.DefaultProvider),
		DefaultBreaker: toBreakerConfig(pf.DefaultProvider),
		OutcomeTimeout: time.Duration(pf.OutcomeTimeoutSeconds) * time.Second,
	}
	for provider, entry := range pf.Providers {
		limits.Buckets[provider] = toBucketConfig(entry)
		limits.Breakers[provider] = toBreakerConfig(entry)
	}
	if limits.OutcomeTimeout <= 0 {
		limits.OutcomeTimeout = 2 * time.Minute
	}

	return table, limits, nil
}

func toRegionPolicy(e regionEntry) domain.RegionPolicy {
	p := domain.RegionPolicy{
		RetentionDays:            e.RetentionDays,
		NotificationRequired:     e.NotificationRequired,
		NotificationWindow:       time.Duration(e.NotificationWindowDays) * 24 * time.Hour,
		ConsentRequiredForReveal: e.ConsentRequiredForReveal,
	}
	if p.RetentionDays <= 0 {
		p.RetentionDays = 365
	}
	if p.NotificationRequired && p.NotificationWindow <= 0 {
		p.NotificationWindow = 30 * 24 * time.Hour
	}
	return p
}

func toBucketConfig(e providerEntry) domain.BucketConfig {
	c := domain.BucketConfig{Capacity: e.Capacity, RefillRate: e.RefillPerSecond}
	if c.Capacity <= 0 {
		c.Capacity = 10
	}
	if c.RefillRate <= 0 {
		c.RefillRate = 1
	}
	return c
}

func toBreakerConfig(e providerEntry) domain.BreakerConfig {
	c := domain.BreakerConfig{
		FailureThreshold: e.FailureThreshold,
		Cooldown:         time.Duration(e.CooldownSeconds) * time.Second,
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

func defaultPolicyTable() domain.PolicyTable {
	return domain.PolicyTable{
		Regions: map[string]domain.RegionPolicy{},
		Default: domain.RegionPolicy{
			RetentionDays:            365,
			NotificationRequired:     true,
			NotificationWindow:       30 * 24 * time.Hour,
			ConsentRequiredForReveal: true,
		},
	}
}

func defaultProviderLimits() domain.ProviderLimits {
	return domain.ProviderLimits{
		Buckets:        map[string]domain.BucketConfig{},
		Breakers:       map[string]domain.BreakerConfig{},
		DefaultBucket:  domain.BucketConfig{Capacity: 10, RefillRate: 1},
		DefaultBreaker: domain.BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second},
		OutcomeTimeout: 2 * time.Minute,
	}
}
