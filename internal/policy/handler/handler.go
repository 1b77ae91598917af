// Package handler exposes the policy engine's authorization decision over
// HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"talentgate/internal/domain"
	"talentgate/pkg/platform/httputil"
	"talentgate/pkg/requestcontext"
)

// Service defines the decision operation the handler delegates to.
type Service interface {
	Authorize(ctx context.Context, req domain.AuthorizeRequest) (domain.Decision, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the authorization endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/authorize", h.HandleAuthorize)
}

// AuthorizeRequest is the JSON request body for POST /v1/authorize.
type AuthorizeRequest struct {
	Kind        string `json:"kind"`
	Provider    string `json:"provider"`
	Region      string `json:"region"`
	CanonicalID string `json:"canonical_id,omitempty"`
	ConsentFlag bool   `json:"consent_flag,omitempty"`
}

// AuthorizeResponse is the JSON decision envelope.
type AuthorizeResponse struct {
	Outcome      string               `json:"outcome"`
	Reason       string               `json:"reason,omitempty"`
	RetryAfterMS int64                `json:"retry_after_ms,omitempty"`
	Obligations  *ObligationsResponse `json:"obligations,omitempty"`
}

type ObligationsResponse struct {
	SetEnrichedAt        bool  `json:"set_enriched_at"`
	NotificationWindowMS int64 `json:"notification_window_ms,omitempty"`
}

// HandleAuthorize handles POST /v1/authorize.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[AuthorizeRequest](w, r, h.logger)
	if !ok {
		return
	}

	start := time.Now()
	decision, err := h.service.Authorize(ctx, domain.AuthorizeRequest{
		Kind:        domain.RequestKind(req.Kind),
		Provider:    req.Provider,
		Region:      req.Region,
		CanonicalID: req.CanonicalID,
		ConsentFlag: req.ConsentFlag,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "authorization failed",
			"request_id", requestcontext.RequestID(ctx),
			"kind", req.Kind,
			"provider", req.Provider,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "authorization decided",
		"request_id", requestcontext.RequestID(ctx),
		"kind", req.Kind,
		"provider", req.Provider,
		"outcome", decision.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, fromDecision(decision))
}

func fromDecision(d domain.Decision) AuthorizeResponse {
	resp := AuthorizeResponse{
		Outcome:      string(d.Outcome),
		Reason:       string(d.Reason),
		RetryAfterMS: d.RetryAfter.Milliseconds(),
	}
	if d.Obligations != nil {
		resp.Obligations = &ObligationsResponse{
			SetEnrichedAt:        d.Obligations.SetEnrichedAt,
			NotificationWindowMS: d.Obligations.NotificationWindow.Milliseconds(),
		}
	}
	return resp
}
