package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/test"`)
}

func TestLedgerAndAlertCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.EntryPosted()
	metrics.EntryPosted()
	metrics.EntryVoided()
	metrics.EntryRejected(shared.ClassLifecycle)
	metrics.EventCreated(alerts.TypeCashLow, alerts.SeverityCritical)
	metrics.MetricFailed(alerts.TypeProjectMarginDrop)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_ledger_entries_total{action="posted"} 2`)
	require.Contains(t, body, `odyssey_ledger_entries_total{action="voided"} 1`)
	require.Contains(t, body, `odyssey_ledger_rejections_total{class="LIFECYCLE"} 1`)
	require.Contains(t, body, `odyssey_alert_events_total{severity="CRITICAL",type="CASH_LOW"} 1`)
	require.Contains(t, body, `odyssey_alert_metric_failures_total{type="PROJECT_MARGIN_DROP"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.EntryPosted()
	metrics.EventCreated(alerts.TypeCashLow, alerts.SeverityWarning)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
