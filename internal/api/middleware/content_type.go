package middleware

import (
	"mime"
	"net/http"

	"github.com/breatheroute/emissions/internal/api/models"
)

// RequireJSON rejects request bodies that are not declared as JSON. Requests
// without a Content-Type are accepted.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || mediaType != "application/json" {
					models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be application/json").
						WithInstance(r.URL.Path).
						Write(w)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
