package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation error on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://emissions.breatheroute.dev/problems/"

// Problem types.
const (
	ProblemTypeValidation      = problemBase + "validation-error"
	ProblemTypeUnauthorized    = problemBase + "unauthorized"
	ProblemTypeForbidden       = problemBase + "forbidden"
	ProblemTypeNotFound        = problemBase + "not-found"
	ProblemTypeConflict        = problemBase + "conflict"
	ProblemTypeUnsupportedType = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests = problemBase + "too-many-requests"
	ProblemTypeInternal        = problemBase + "internal-error"
	ProblemTypeUnavailable     = problemBase + "service-unavailable"
	ProblemTypeTLSRequired     = problemBase + "tls-required"
)

// NewProblem creates a Problem.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail sets the detail message.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors sets the field errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write encodes the Problem to w.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID).
		WithDetail(detail).
		WithErrors(errors)
}

// NewUnauthorized creates a 401 problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID).WithDetail(detail)
}

// NewForbidden creates a 403 problem.
func NewForbidden(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeForbidden, "Forbidden", http.StatusForbidden, traceID).WithDetail(detail)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID).WithDetail(detail)
}

// NewConflict creates a 409 problem.
func NewConflict(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeConflict, "Conflict", http.StatusConflict, traceID).WithDetail(detail)
}

// NewUnsupportedMediaType creates a 415 problem.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnsupportedType, "Unsupported media type", http.StatusUnsupportedMediaType, traceID).WithDetail(detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID).WithDetail(detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID).WithDetail(detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID).WithDetail(detail)
}
