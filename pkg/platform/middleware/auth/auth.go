// Package auth gates operator endpoints behind bearer-token validation.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httputil"
	"talentgate/pkg/requestcontext"
)

// Claims are the validated token claims the middleware needs.
type Claims struct {
	Subject string
	Scopes  []string
}

// TokenValidator validates a raw bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type contextKeySubject struct{}

// Subject returns the authenticated operator identity from the context.
func Subject(ctx context.Context) string {
	subject, _ := ctx.Value(contextKeySubject{}).(string)
	return subject
}

// RequireScope rejects requests without a valid bearer token carrying the
// given scope.
func RequireScope(validator TokenValidator, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access, missing bearer token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			if !hasScope(claims.Scopes, scope) {
				logger.WarnContext(ctx, "access denied, missing scope",
					"request_id", requestcontext.RequestID(ctx),
					"subject", claims.Subject,
					"scope", scope,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeDenied, "token lacks required scope"))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeySubject{}, claims.Subject)))
		})
	}
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
