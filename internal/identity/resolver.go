// Package identity computes canonical identifiers for externally sighted
// profile records so repeated sightings collapse to one stored entity.
//
// Resolution is strictly deterministic: no fuzzy matching and no
// cross-provider merging. Two different canonical keys are always two
// different subjects; ambiguity goes to a human reviewer, never resolved
// automatically.
package identity

import (
	"net/url"
	"strings"

	dErrors "talentgate/pkg/domain-errors"
)

// Resolve computes the canonical identifier for a sighting. A normalized
// source URL takes precedence; otherwise the provider-assigned ID is used as
// "provider:providerID".
func Resolve(provider, sourceURL, providerID string) (string, error) {
	if sourceURL != "" {
		canonical, err := normalizeURL(sourceURL)
		if err != nil {
			return "", err
		}
		return canonical, nil
	}
	if providerID != "" {
		if provider == "" {
			return "", dErrors.New(dErrors.CodeInvalidInput, "provider is required with a provider ID")
		}
		return provider + ":" + providerID, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "source URL or provider ID is required")
}

// normalizeURL canonicalizes a profile URL: lowercase scheme, host and path,
// strip query, fragment and trailing slash. Capitalization and tracking
// parameters never distinguish identities.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "source URL is not parseable")
	}
	if u.Host == "" || u.Scheme == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "source URL must be absolute")
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	path := strings.TrimRight(strings.ToLower(u.Path), "/")

	return scheme + "://" + host + path, nil
}
