package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

func TestHealthzReportsChecks(t *testing.T) {
	router := NewRouter(RouterParams{
		Config: &Config{RateLimitPerMinute: 100},
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "ok", body.Checks["postgres"])
}

func TestHealthzDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		HealthChecks: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "connection refused")
}

func TestUnknownRouteReturnsProblem(t *testing.T) {
	router := NewRouter(RouterParams{Metrics: observability.NewMetrics()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "odyssey_http_requests_total")
}

func TestRateLimitByActor(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{RateLimitPerMinute: 2}})

	call := func(actor string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Actor-ID", actor)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, call("1"))
	require.Equal(t, http.StatusOK, call("1"))
	require.Equal(t, http.StatusTooManyRequests, call("1"))
	require.Equal(t, http.StatusOK, call("2"))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{PGDSN: "postgres://x", AgingCacheTTL: 1, CloseLockTTL: 1, RateLimitPerMinute: 1, CashAccountCodes: []string{"1000"}}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.CashAccountCodes = nil
	require.Error(t, bad.Validate())

	bad = cfg
	bad.AgingCacheTTL = 0
	require.Error(t, bad.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("CASH_ACCOUNT_CODES", "1000,1010,1020")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"1000", "1010", "1020"}, cfg.CashAccountCodes)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "*/15 * * * *", cfg.AlertSweepCron)
}
