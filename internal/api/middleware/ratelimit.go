package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/breatheroute/emissions/internal/api/models"
	"github.com/breatheroute/emissions/internal/monitoring"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	Name         string
	RequestLimit int
	WindowLength time.Duration
}

var (
	// RunSubmitRateLimit bounds run submissions (5 req/min per operator).
	RunSubmitRateLimit = RateLimitConfig{
		Name:         "run_submit",
		RequestLimit: 5,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to read endpoints (100 req/min).
	StandardRateLimit = RateLimitConfig{
		Name:         "standard",
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP limits requests per client IP. Mount after chi's RealIP to
// honour X-Forwarded-For.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// RateLimitByOperator limits requests per authenticated operator, falling
// back to the client IP for anonymous requests.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByOperatorOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if operator := GetOperator(r.Context()); operator != "" {
		return "operator:" + operator, nil
	}
	return httprate.KeyByRealIP(r)
}

func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		monitoring.RecordRateLimitExceeded(cfg.Name)

		// httprate does not expose the window reset, so the full window
		// is advertised.
		w.Header().Set("Retry-After", retryAfter)
		models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
			WithInstance(r.URL.Path).
			Write(w)
	}
}
