package domain

import "time"

// RequestKind is a closed enum of acquisition request types. Call sites
// switch exhaustively on it so adding a kind forces every site to be
// revisited.
type RequestKind string

const (
	// KindDiscovery: cheap, low-detail lookup that retrieves no personal data.
	KindDiscovery RequestKind = "discovery"
	// KindReveal: enrichment call retrieving full personal data for one subject.
	KindReveal RequestKind = "reveal"
)

// IsValid checks if the kind is one of the supported enum values.
func (k RequestKind) IsValid() bool {
	switch k {
	case KindDiscovery, KindReveal:
		return true
	}
	return false
}

// AuthorizeRequest is a caller's ask to query an external provider.
type AuthorizeRequest struct {
	Kind        RequestKind
	Provider    string
	Region      string // ISO region code used for policy lookup
	CanonicalID string // required for reveal
	ConsentFlag bool
}

// DecisionOutcome enumerates the possible policy decisions.
type DecisionOutcome string

const (
	OutcomeApproved            DecisionOutcome = "approved"
	OutcomeDenied              DecisionOutcome = "denied"
	OutcomeRetryAfter          DecisionOutcome = "retry_after"
	OutcomeProviderUnavailable DecisionOutcome = "provider_unavailable"
)

// DenialReason explains a denied decision.
type DenialReason string

const (
	ReasonTombstoned          DenialReason = "tombstoned"
	ReasonNotificationOverdue DenialReason = "notification_overdue"
	ReasonConsentRequired     DenialReason = "consent_required"
)

// RevealObligations instructs the caller what a successful enrichment must
// write back. The policy engine never mutates records itself.
type RevealObligations struct {
	SetEnrichedAt bool
	// NotificationWindow is how long after enrichment the subject must be
	// notified. Zero when the region does not enforce the deadline.
	NotificationWindow time.Duration
}

// Decision is the policy engine's answer to an AuthorizeRequest.
type Decision struct {
	Outcome     DecisionOutcome
	Reason      DenialReason
	RetryAfter  time.Duration
	Obligations *RevealObligations
}

// Approved reports whether the caller may proceed with the provider call.
func (d Decision) Approved() bool {
	return d.Outcome == OutcomeApproved
}
