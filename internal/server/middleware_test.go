package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumumio1/wtarget/internal/config"
	"github.com/mumumio1/wtarget/internal/log"
	"github.com/mumumio1/wtarget/internal/metrics"
)

func TestRequestIDMiddleware(t *testing.T) {
	provided := uuid.New().String()

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "generates when absent", header: ""},
		{name: "keeps valid uuid", header: provided, wantSame: true},
		{name: "replaces invalid id", header: "not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, testConfig())

			var captured string
			handler := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured, _ = r.Context().Value(log.RequestIDKey).(string)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set(headerRequestID, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			_, err := uuid.Parse(captured)
			require.NoError(t, err)
			assert.Equal(t, captured, rec.Header().Get(headerRequestID))
			if tt.wantSame {
				assert.Equal(t, tt.header, captured)
			} else {
				assert.NotEqual(t, tt.header, captured)
			}
		})
	}
}

func TestAccessLogOncePerRequest(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.ErrorMode = config.ErrorModeAlways
	s, buf := newTestServer(t, cfg)
	h := s.Handler()

	requests := []struct {
		target     string
		wantStatus int
	}{
		{target: "/api/status", wantStatus: http.StatusOK},
		{target: "/api/items?filter=item", wantStatus: http.StatusOK},
		{target: "/api/slow?ms=5", wantStatus: http.StatusOK},
		{target: "/api/error", wantStatus: http.StatusInternalServerError},
		{target: "/healthz", wantStatus: http.StatusOK},
		{target: "/ready", wantStatus: http.StatusServiceUnavailable},
	}

	for _, r := range requests {
		rec := do(t, h, http.MethodGet, r.target)
		require.Equal(t, r.wantStatus, rec.Code, r.target)
	}

	entries := buf.accessEntries(t)
	require.Len(t, entries, len(requests))

	for i, r := range requests {
		e := entries[i]
		assert.Equal(t, "GET", e["method"])
		assert.Equal(t, r.target, e["path"], "path keeps the query string")
		assert.Equal(t, float64(r.wantStatus), e["status"])
		assert.Contains(t, e, "duration_ms")
		assert.Contains(t, e, "timestamp")
		assert.NotEmpty(t, e["request_id"])
	}

	assert.GreaterOrEqual(t, entries[2]["duration_ms"], float64(5))
}

func TestRecoveryMiddleware(t *testing.T) {
	s, buf := newTestServer(t, testConfig(), WithMetrics(metrics.NewMetrics()))

	handler := s.accessLogMiddleware(s.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := do(t, handler, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MessageResponse{Status: "error", Message: "Internal server error"}, decode[MessageResponse](t, rec))

	entries := buf.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "panic recovered", entries[0]["message"])
	assert.Equal(t, "boom", entries[0]["panic"])
	assert.Equal(t, "request", entries[1]["message"])
	assert.Equal(t, float64(500), entries[1]["status"])
}

func TestRecoveryRepanicsOnAbort(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	handler := s.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		do(t, handler, http.MethodGet, "/api/status")
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 2

	s, buf := newTestServer(t, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)

	rec := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, MessageResponse{Status: "error", Message: "rate limit exceeded"}, decode[MessageResponse](t, rec))

	entries := buf.accessEntries(t)
	require.Len(t, entries, 3)
	assert.Equal(t, float64(429), entries[2]["status"])
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewMetrics()
	cfg := testConfig()
	cfg.Simulation.ErrorMode = config.ErrorModeAlways
	s, _ := newTestServer(t, cfg, WithMetrics(m))
	h := s.Handler()

	do(t, h, http.MethodGet, "/api/items?filter=a")
	do(t, h, http.MethodGet, "/api/error")
	do(t, h, http.MethodGet, "/api/slow?ms=1")
	do(t, h, http.MethodGet, "/nowhere")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, `wtarget_http_requests_total{method="GET",route="GET /api/items",status="200"} 1`)
	assert.Contains(t, out, `wtarget_http_requests_total{method="GET",route="GET /api/error",status="500"} 1`)
	assert.Contains(t, out, `wtarget_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, out, `wtarget_simulated_error_decisions_total{outcome="error"} 1`)
	assert.Contains(t, out, "wtarget_simulated_delay_seconds_count 1")
	assert.Contains(t, out, "wtarget_http_requests_in_flight 0")
}

func TestWrappedWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := newWrappedWriter(rec)

	ww.WriteHeader(http.StatusAccepted)
	ww.WriteHeader(http.StatusTeapot)
	n, err := ww.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, ww.Status())
	assert.Equal(t, int64(5), ww.bytesWritten)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Same(t, rec, ww.Unwrap())
}
