// Package httptransport assembles the public HTTP surface: middleware stack,
// feature handlers, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "talentgate/internal/audit/handler"
	policyhandler "talentgate/internal/policy/handler"
	profilehandler "talentgate/internal/profile/handler"
	"talentgate/pkg/platform/httputil"
	authmw "talentgate/pkg/platform/middleware/auth"
	"talentgate/pkg/platform/middleware/logging"
	"talentgate/pkg/platform/middleware/recovery"
	"talentgate/pkg/platform/middleware/requestid"
	"talentgate/pkg/platform/middleware/requesttime"
)

// ScopeAuditExport gates the audit export endpoint.
const ScopeAuditExport = "audit:export"

// Pinger checks reachability of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditHealth reports whether the audit trail has gaps.
type AuditHealth interface {
	Healthy() bool
}

// Deps carries everything the router mounts.
type Deps struct {
	Policy    *policyhandler.Handler
	Profile   *profilehandler.Handler
	Audit     *audithandler.Handler
	Validator authmw.TokenValidator

	RecordStore Pinger
	AuditTrail  AuditHealth
	Logger      *slog.Logger
}

// NewRouter wires the middleware stack and all endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(recovery.Middleware(deps.Logger))
	r.Use(logging.Middleware(deps.Logger))

	deps.Policy.Register(r)
	deps.Profile.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireScope(deps.Validator, ScopeAuditExport, deps.Logger))
		deps.Audit.Register(r)
	})

	r.Get("/healthz", handleHealth(deps.RecordStore, deps.AuditTrail))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth reports degraded when the record store is unreachable or any
// audit write has been lost.
func handleHealth(store Pinger, trail AuditHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"record_store": "ok", "audit_trail": "ok"}
		status := http.StatusOK

		if err := store.Ping(r.Context()); err != nil {
			checks["record_store"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
		if !trail.Healthy() {
			checks["audit_trail"] = "write_failures"
			status = http.StatusServiceUnavailable
		}

		resp := healthResponse{Status: "ok", Checks: checks}
		if status != http.StatusOK {
			resp.Status = "degraded"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
