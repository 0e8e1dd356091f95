package periods

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerProvisionResolveClose(t *testing.T) {
	svc, _ := newTestService(&stubSnapshotter{balances: map[int64]int64{1: 10}})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api/periods", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/periods", strings.NewReader(`{"year":2025,"month":1}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created periodResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "2025-01", created.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/periods/resolve?date=2025-01-20", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/periods/resolve?date=2025-07-20", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/periods/1/close", nil)
	req.Header.Set("X-Actor-ID", "4")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed periodResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&closed))
	require.Equal(t, PeriodStatusClosed, closed.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/periods/1/close", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
