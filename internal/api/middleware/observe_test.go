package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/emissions/internal/api/middleware"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func attr(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func decodeLog(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response body"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", http.NoBody)
	req.Header.Set("User-Agent", "test-agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLog(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/runs", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(13), entry["bytes"])
	assert.Equal(t, "test-agent", entry["user_agent"])
}

func TestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusNotFound, "warn"},
		{http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/runs", http.NoBody))

			entry := decodeLog(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestLogger_IncludesRequestAndTraceIDs(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	handler := middleware.RequestID(middleware.Tracing("emissions-worker")(
		middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(okHandler)),
	))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs", http.NoBody))

	entry := decodeLog(t, &buf)
	assert.Contains(t, entry["request_id"], "req_")
	assert.Len(t, entry["trace_id"], 32)
	assert.Len(t, entry["span_id"], 16)
}

func TestTracing_SpanPerRequest(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.Tracing("emissions-worker")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/abc", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/runs/abc", spans[0].Name())
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())

	status, ok := attr(spans[0].Attributes(), "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(404), status.AsInt64())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestTracing_NamesSpanByRoute(t *testing.T) {
	sr := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("emissions-worker"))
	r.Get("/v1/runs/{runId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs/abc", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/runs/{runId}", spans[0].Name())
	route, ok := attr(spans[0].Attributes(), "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/runs/{runId}", route.AsString())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMetrics_Middleware(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("body"))
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", http.NoBody))
		assert.Equal(t, status, rec.Code)
		assert.Equal(t, "body", rec.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(middleware.Recovery(zerolog.New(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "internal-error")

	entry := decodeLog(t, &buf)
	assert.Equal(t, "panic recovered", entry["message"])
	assert.Equal(t, "boom", entry["panic"])
}
