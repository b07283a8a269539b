package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/api/middleware"
	"github.com/breatheroute/emissions/internal/auth"
)

func TestRateLimitByIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{Name: "test_ip", RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/runs", http.NoBody)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("172.16.0.1:12345"))
	assert.Equal(t, http.StatusOK, send("172.16.0.1:12345"))
	assert.Equal(t, http.StatusTooManyRequests, send("172.16.0.1:12345"))
	assert.Equal(t, http.StatusOK, send("172.16.0.2:12345"))
}

func TestRateLimitByOperator(t *testing.T) {
	tokens := testTokens(t)
	cfg := middleware.RateLimitConfig{Name: "test_operator", RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.Auth(tokens)(middleware.RateLimitByOperator(cfg)(http.HandlerFunc(okHandler)))

	alice, _, err := tokens.Issue("alice", auth.ScopeRunsWrite)
	require.NoError(t, err)
	bob, _, err := tokens.Issue("bob", auth.ScopeRunsWrite)
	require.NoError(t, err)

	send := func(token, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/runs", http.NoBody)
		req.RemoteAddr = ip
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(alice, "10.1.0.1:1"))
	// Same operator from another address shares the budget.
	assert.Equal(t, http.StatusTooManyRequests, send(alice, "10.1.0.2:1"))
	assert.Equal(t, http.StatusOK, send(bob, "10.1.0.1:1"))
}

func TestRateLimitExceeded_Problem(t *testing.T) {
	cfg := middleware.RateLimitConfig{Name: "test_problem", RequestLimit: 1, WindowLength: 30 * time.Second}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler)))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/runs/abc", http.NoBody)
		req.RemoteAddr = "203.0.113.1:12345"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "/v1/runs/abc")
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 5, middleware.RunSubmitRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.RunSubmitRateLimit.WindowLength)
	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
}
