// Package policy is the authorization engine for acquisition requests. It
// evaluates region/consent rules and record state, consults the rate
// limiter, and returns a decision or a structured denial. It never mutates
// profile records itself: approvals carry obligations the caller applies
// through the profile coordinator.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"talentgate/internal/audit"
	"talentgate/internal/domain"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/ratelimit/models"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/sentinel"
	"talentgate/pkg/requestcontext"
)

// requestCost is the token cost of one provider call. Discovery and reveal
// draw from the same per-provider bucket.
const requestCost = 1

// RecordReader looks up current record state. Satisfied by the profile store.
type RecordReader interface {
	Get(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error)
}

// RateLimiter admits provider calls. Satisfied by ratelimit.Limiter.
type RateLimiter interface {
	TryAcquire(ctx context.Context, provider string, cost float64) (models.AcquireResult, error)
}

// Auditor records every decision. Satisfied by audit.Logger.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) (int64, error)
}

// Engine evaluates authorization rules in a fixed order. Rules are
// centralized here so they stay testable without transport or storage.
type Engine struct {
	records  RecordReader
	limiter  RateLimiter
	auditor  Auditor
	policies domain.PolicyTable
	tracer   trace.Tracer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates the policy engine.
func New(records RecordReader, limiter RateLimiter, auditor Auditor, policies domain.PolicyTable, opts ...Option) (*Engine, error) {
	if records == nil {
		return nil, fmt.Errorf("record reader is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("auditor is required")
	}

	e := &Engine{
		records:  records,
		limiter:  limiter,
		auditor:  auditor,
		policies: policies,
		tracer:   otel.Tracer("talentgate/policy"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Authorize evaluates one acquisition request. Every call writes exactly one
// audit entry, whatever the outcome; if that write fails, the request fails
// closed. A returned error means no decision was reached (storage failure or
// invalid input), never a policy denial.
func (e *Engine) Authorize(ctx context.Context, req domain.AuthorizeRequest) (domain.Decision, error) {
	ctx, span := e.tracer.Start(ctx, "policy.Authorize",
		trace.WithAttributes(
			attribute.String("request.kind", string(req.Kind)),
			attribute.String("request.provider", req.Provider),
			attribute.String("request.region", req.Region),
		))
	defer span.End()

	if err := validate(req); err != nil {
		return domain.Decision{}, err
	}

	record, err := e.lookupRecord(ctx, req.CanonicalID)
	if err != nil {
		// Fail closed: without record state the compliance rules cannot run.
		return domain.Decision{}, err
	}

	decision := e.evaluate(ctx, req, record)
	span.SetAttributes(attribute.String("decision.outcome", string(decision.Outcome)))

	if err := e.auditDecision(ctx, req, decision); err != nil {
		return domain.Decision{}, err
	}
	if e.metrics != nil {
		e.metrics.Decisions.WithLabelValues(string(req.Kind), string(decision.Outcome)).Inc()
	}
	return decision, nil
}

// evaluate runs the rule chain. Order matters: record-state rules come
// before consent, consent before throttling, so a denial never consumes
// tokens.
func (e *Engine) evaluate(ctx context.Context, req domain.AuthorizeRequest, record *domain.ProfileRecord) domain.Decision {
	now := requestcontext.Now(ctx)
	regionPolicy := e.policies.ForRegion(req.Region)

	// Rule 1: tombstoned records are inert. A reveal is refused regardless
	// of region policy; under deadline enforcement any request against the
	// record is refused.
	if record != nil && record.Stage == domain.StageTombstoned {
		if req.Kind == domain.KindReveal || regionPolicy.NotificationRequired {
			return deny(domain.ReasonTombstoned)
		}
	}

	// Rule 2: missed notification deadline. The sweep should already have
	// tombstoned the record; denying the reveal here is the safety net.
	// Discovery of a new, unrelated record is unaffected.
	if req.Kind == domain.KindReveal && regionPolicy.NotificationRequired &&
		record != nil && record.Enriched() && record.NotificationOverdue(now) {
		return deny(domain.ReasonNotificationOverdue)
	}

	// Rule 3: consent gating for reveals.
	if req.Kind == domain.KindReveal && !req.ConsentFlag && regionPolicy.ConsentRequiredForReveal {
		return deny(domain.ReasonConsentRequired)
	}

	// Rule 4: provider throttling and failure isolation.
	result, err := e.limiter.TryAcquire(ctx, req.Provider, requestCost)
	if err != nil {
		// A broken limiter store cannot admit anything: fail closed as
		// provider-unavailable rather than bypassing throttling.
		e.logger.Error("rate limiter unavailable, failing closed", "provider", req.Provider, "error", err)
		return domain.Decision{Outcome: domain.OutcomeProviderUnavailable}
	}
	switch result.Status {
	case models.StatusThrottled:
		return domain.Decision{Outcome: domain.OutcomeRetryAfter, RetryAfter: result.RetryAfter}
	case models.StatusOpen:
		return domain.Decision{Outcome: domain.OutcomeProviderUnavailable, RetryAfter: result.RetryAfter}
	}

	// Rule 5: approved. Reveals carry the write-back obligations.
	decision := domain.Decision{Outcome: domain.OutcomeApproved}
	switch req.Kind {
	case domain.KindReveal:
		obligations := &domain.RevealObligations{SetEnrichedAt: true}
		if regionPolicy.NotificationRequired {
			obligations.NotificationWindow = regionPolicy.NotificationWindow
		}
		decision.Obligations = obligations
	case domain.KindDiscovery:
		// No obligations: discovery records are created by the coordinator
		// when the sighting is reported.
	}
	return decision
}

func (e *Engine) lookupRecord(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error) {
	if canonicalID == "" {
		return nil, nil
	}
	record, err := e.records.Get(ctx, canonicalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record lookup failed")
	}
	return record, nil
}

func (e *Engine) auditDecision(ctx context.Context, req domain.AuthorizeRequest, decision domain.Decision) error {
	eventType := audit.EventDeny
	if decision.Approved() {
		if req.Kind == domain.KindReveal {
			eventType = audit.EventReveal
		} else {
			eventType = audit.EventSearch
		}
	}

	entryCtx := map[string]string{
		"kind": string(req.Kind),
	}
	if req.CanonicalID != "" {
		entryCtx["canonical_id"] = req.CanonicalID
	}
	if decision.Reason != "" {
		entryCtx["reason"] = string(decision.Reason)
	}
	if decision.RetryAfter > 0 {
		entryCtx["retry_after_ms"] = strconv.FormatInt(decision.RetryAfter.Milliseconds(), 10)
	}

	_, err := e.auditor.Append(ctx, audit.Entry{
		EventType: eventType,
		Provider:  req.Provider,
		Region:    req.Region,
		Decision:  string(decision.Outcome),
		Context:   entryCtx,
	})
	if err != nil {
		// The one permissible unaudited failure mode: surfaced, fail closed.
		return dErrors.Wrap(err, dErrors.CodeInternal, "decision could not be audited")
	}
	return nil
}

func validate(req domain.AuthorizeRequest) error {
	if !req.Kind.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown request kind")
	}
	if req.Provider == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "provider is required")
	}
	if req.Region == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "region is required")
	}
	if req.Kind == domain.KindReveal && req.CanonicalID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "canonical_id is required for reveal")
	}
	return nil
}

func deny(reason domain.DenialReason) domain.Decision {
	return domain.Decision{Outcome: domain.OutcomeDenied, Reason: reason}
}
