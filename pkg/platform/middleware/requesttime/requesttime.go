// Package requesttime pins a single "now" per request. Every operation in a
// request sees the same timestamp, keeping audit entries and lifecycle
// deadlines consistent.
package requesttime

import (
	"net/http"
	"time"

	"talentgate/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
