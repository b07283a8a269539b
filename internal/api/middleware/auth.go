package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/breatheroute/emissions/internal/api/models"
	"github.com/breatheroute/emissions/internal/auth"
)

type claimsKey struct{}

// TokenValidator validates operator bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Auth requires a valid operator bearer token and stores its claims in the
// request context.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "

			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}
			if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}
			token := strings.TrimSpace(header[len(prefix):])
			if token == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "operator token has expired")
				default:
					writeUnauthorized(w, r, "invalid operator token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token does not grant scope. It must be
// mounted after Auth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeUnauthorized(w, r, "authentication required")
				return
			}
			if !claims.HasScope(scope) {
				models.NewForbidden(GetRequestID(r.Context()), auth.ErrMissingScope.Error()+": "+scope).
					WithInstance(r.URL.Path).
					Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized lives here rather than in package response, which
// imports this package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="emissions"`)
	models.NewUnauthorized(GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}

// GetClaims returns the operator claims stored by Auth, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// GetOperator returns the authenticated operator name, or "".
func GetOperator(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
