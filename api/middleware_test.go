package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	// GIVEN: A limiter with a burst of two
	ts := newTestServer(t)
	limiter := NewRateLimiter(60, 2, zerolog.Nop())
	t.Cleanup(limiter.Stop)
	router := NewRouter(ts.handler, RouterOptions{RateLimiter: limiter, Logger: zerolog.Nop()})

	get := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// WHEN: One client makes three API calls
	assert.Equal(t, http.StatusOK, get("/api/loans", "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, get("/api/loans", "10.0.0.1:5001").Code)
	rec := get("/api/loans", "10.0.0.1:5002")

	// THEN: The third is throttled, other clients and health checks are not
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusOK, get("/api/loans", "10.0.0.2:5000").Code)
	assert.Equal(t, http.StatusOK, get("/healthz", "10.0.0.1:5003").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:4242"
	assert.Equal(t, "192.168.1.9", clientIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(req))
}

func TestMetrics_CountsOperationsAndErrors(t *testing.T) {
	// GIVEN: One created loan and one failed lookup
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/loans", regressionLoan)
	ts.do(t, http.MethodGet, "/api/loans/missing/schedule", "")
	ts.do(t, http.MethodGet, "/api/loans/loan-1/schedule", "")

	// WHEN: Scraping
	rec := ts.do(t, http.MethodGet, "/metrics", "")

	// THEN: Both show up
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `loan_engine_schedules_generated_total{operation="create_loan"} 1`)
	assert.Contains(t, body, `loan_engine_schedules_generated_total{operation="preview_schedule"} 1`)
	assert.Contains(t, body, `loan_engine_operation_duration_seconds_bucket{operation="create_loan"`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestMetrics_RecordRecalculation(t *testing.T) {
	m := NewMetrics()
	m.RecordRecalculation(RecalculationResult{Checked: 5, Changed: 2, Failed: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `loan_engine_recalculation_loans_total{result="changed"} 2`)
	assert.Contains(t, body, `loan_engine_recalculation_loans_total{result="unchanged"} 2`)
	assert.Contains(t, body, `loan_engine_recalculation_loans_total{result="failed"} 1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/loans", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
