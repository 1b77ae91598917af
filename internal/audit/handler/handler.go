// Package handler exposes the audit trail export for compliance reviews.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"talentgate/internal/audit"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httputil"
	authmw "talentgate/pkg/platform/middleware/auth"
	"talentgate/pkg/requestcontext"
)

// defaultLimit caps one export page.
const defaultLimit = 1000

// Exporter defines the range reads the handler delegates to.
type Exporter interface {
	ExportBySequence(ctx context.Context, fromSeq, toSeq int64, limit int) ([]audit.Entry, error)
	ExportByTime(ctx context.Context, from, to time.Time, limit int) ([]audit.Entry, error)
}

type Handler struct {
	exporter Exporter
	logger   *slog.Logger
}

func New(exporter Exporter, logger *slog.Logger) *Handler {
	return &Handler{exporter: exporter, logger: logger}
}

// Register mounts the export endpoint on the router. The caller wraps it in
// the auth middleware; registration itself carries no gate.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/audit/export", h.HandleExport)
}

// ExportResponse is the JSON export envelope.
type ExportResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// HandleExport handles GET /v1/audit/export. Callers pass either a sequence
// window (from_seq, to_seq) or a timestamp window (from, to as RFC 3339).
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > defaultLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	var (
		entries []audit.Entry
		err     error
	)
	switch {
	case q.Get("from_seq") != "" || q.Get("to_seq") != "":
		var fromSeq, toSeq int64
		fromSeq, err = strconv.ParseInt(q.Get("from_seq"), 10, 64)
		if err == nil {
			toSeq, err = strconv.ParseInt(q.Get("to_seq"), 10, 64)
		}
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "from_seq and to_seq must be integers"))
			return
		}
		entries, err = h.exporter.ExportBySequence(ctx, fromSeq, toSeq, limit)

	case q.Get("from") != "" || q.Get("to") != "":
		var from, to time.Time
		from, err = time.Parse(time.RFC3339, q.Get("from"))
		if err == nil {
			to, err = time.Parse(time.RFC3339, q.Get("to"))
		}
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "from and to must be RFC 3339 timestamps"))
			return
		}
		entries, err = h.exporter.ExportByTime(ctx, from, to, limit)

	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "a sequence or timestamp window is required"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit export failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject", authmw.Subject(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit trail exported",
		"request_id", requestcontext.RequestID(ctx),
		"subject", authmw.Subject(ctx),
		"count", len(entries),
	)
	httputil.WriteJSON(w, http.StatusOK, ExportResponse{Entries: entries, Count: len(entries)})
}
