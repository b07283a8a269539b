// Package response writes JSON and problem responses for the operator API.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/breatheroute/emissions/internal/api/middleware"
	"github.com/breatheroute/emissions/internal/api/models"
)

// JSON writes data as JSON with the given status code and echoes the
// request ID.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Accepted writes a 202 response pointing at location.
func Accepted(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusAccepted, data)
}

// Error writes problem with the request path as instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.WithInstance(r.URL.Path).Write(w)
}

// BadRequest writes a 400 problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}
