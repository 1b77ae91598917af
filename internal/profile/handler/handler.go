// Package handler exposes outcome reporting and notification
// acknowledgement over HTTP. Outcome reporting is the write half of the
// acquisition flow: the policy engine only decides, callers report what the
// provider call actually did.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"talentgate/internal/audit"
	"talentgate/internal/domain"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httputil"
	"talentgate/pkg/requestcontext"
)

// Service defines the profile writes the handler delegates to.
type Service interface {
	RecordDiscovery(ctx context.Context, provider, region, sourceURL, providerID string, payload []byte) (*domain.ProfileRecord, error)
	ApplyReveal(ctx context.Context, canonicalID string, payload []byte, obligations domain.RevealObligations) (*domain.ProfileRecord, error)
	MarkNotificationSent(ctx context.Context, canonicalID string) (*domain.ProfileRecord, error)
}

// OutcomeRecorder feeds provider-call results into breaker accounting.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, provider string, success bool)
}

// Auditor records the notification acknowledgement trail.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) (int64, error)
}

type Handler struct {
	service Service
	limiter OutcomeRecorder
	auditor Auditor
	logger  *slog.Logger
}

func New(service Service, limiter OutcomeRecorder, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{service: service, limiter: limiter, auditor: auditor, logger: logger}
}

// Register mounts the profile write endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/outcome", h.HandleOutcome)
	r.Post("/v1/records/{canonicalID}/notification", h.HandleNotificationSent)
}

// OutcomeRequest reports the result of an admitted provider call.
type OutcomeRequest struct {
	Kind     string `json:"kind"`
	Provider string `json:"provider"`
	Region   string `json:"region"`
	Success  bool   `json:"success"`

	// Identity of the sighted subject. Reveal outcomes address the existing
	// record by canonical ID; discovery outcomes carry the raw sighting.
	CanonicalID string `json:"canonical_id,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	ProviderID  string `json:"provider_id,omitempty"`

	// Payload is the provider response body to seal and store.
	Payload []byte `json:"payload,omitempty"`

	// Obligations echoes the decision returned by the authorize call.
	Obligations *ObligationsRequest `json:"obligations,omitempty"`
}

type ObligationsRequest struct {
	SetEnrichedAt        bool  `json:"set_enriched_at"`
	NotificationWindowMS int64 `json:"notification_window_ms,omitempty"`
}

// RecordResponse is the stored record's lifecycle view. The sealed payload
// never leaves the store through this surface.
type RecordResponse struct {
	CanonicalID        string     `json:"canonical_id"`
	Provider           string     `json:"provider"`
	Region             string     `json:"region"`
	Stage              string     `json:"stage"`
	DiscoveredAt       time.Time  `json:"discovered_at"`
	EnrichedAt         *time.Time `json:"enriched_at,omitempty"`
	NotificationSent   bool       `json:"notification_sent"`
	NotificationDueAt  *time.Time `json:"notification_due_at,omitempty"`
	RetentionExpiresAt time.Time  `json:"retention_expires_at"`
	Version            int64      `json:"version"`
}

// HandleOutcome handles POST /v1/outcome. The breaker is always fed; record
// writes happen only on success.
func (h *Handler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[OutcomeRequest](w, r, h.logger)
	if !ok {
		return
	}

	kind := domain.RequestKind(req.Kind)
	if !kind.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "kind must be discovery or reveal"))
		return
	}
	if req.Provider == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "provider is required"))
		return
	}

	h.limiter.RecordOutcome(ctx, req.Provider, req.Success)

	if !req.Success {
		h.logger.InfoContext(ctx, "provider call failure recorded",
			"request_id", requestcontext.RequestID(ctx),
			"provider", req.Provider,
			"kind", req.Kind,
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var (
		record *domain.ProfileRecord
		err    error
	)
	switch kind {
	case domain.KindDiscovery:
		record, err = h.service.RecordDiscovery(ctx, req.Provider, req.Region, req.SourceURL, req.ProviderID, req.Payload)
	case domain.KindReveal:
		if req.CanonicalID == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "canonical_id is required for reveal outcomes"))
			return
		}
		record, err = h.service.ApplyReveal(ctx, req.CanonicalID, req.Payload, toObligations(req.Obligations))
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "outcome write failed",
			"request_id", requestcontext.RequestID(ctx),
			"provider", req.Provider,
			"kind", req.Kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromRecord(record))
}

// HandleNotificationSent handles
// POST /v1/records/{canonicalID}/notification. Canonical IDs derived from
// source URLs contain slashes, so callers path-escape the segment.
func (h *Handler) HandleNotificationSent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	canonicalID, err := url.PathUnescape(chi.URLParam(r, "canonicalID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "canonical ID is not a valid path segment"))
		return
	}

	record, err := h.service.MarkNotificationSent(ctx, canonicalID)
	if err != nil {
		h.logger.ErrorContext(ctx, "notification acknowledgement failed",
			"request_id", requestcontext.RequestID(ctx),
			"canonical_id", canonicalID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if _, auditErr := h.auditor.Append(ctx, audit.Entry{
		EventType: audit.EventNotification,
		Provider:  record.Provider,
		Region:    record.Region,
		Decision:  "notification_sent",
		Context:   map[string]string{"canonical_id": record.CanonicalID},
	}); auditErr != nil {
		h.logger.ErrorContext(ctx, "notification audit failed",
			"request_id", requestcontext.RequestID(ctx),
			"canonical_id", canonicalID,
			"error", auditErr,
		)
	}

	httputil.WriteJSON(w, http.StatusOK, fromRecord(record))
}

func toObligations(req *ObligationsRequest) domain.RevealObligations {
	if req == nil {
		return domain.RevealObligations{}
	}
	return domain.RevealObligations{
		SetEnrichedAt:      req.SetEnrichedAt,
		NotificationWindow: time.Duration(req.NotificationWindowMS) * time.Millisecond,
	}
}

func fromRecord(record *domain.ProfileRecord) RecordResponse {
	return RecordResponse{
		CanonicalID:        record.CanonicalID,
		Provider:           record.Provider,
		Region:             record.Region,
		Stage:              string(record.Stage),
		DiscoveredAt:       record.DiscoveredAt,
		EnrichedAt:         record.EnrichedAt,
		NotificationSent:   record.NotificationSent,
		NotificationDueAt:  record.NotificationDueAt,
		RetentionExpiresAt: record.RetentionExpiresAt,
		Version:            record.Version,
	}
}
