package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*memoryRepo, http.Handler) {
	t.Helper()
	svc, repo := newTestService(&stubLedger{cash: 1000}, &stubAging{})
	seed(t, svc, Rule{Type: TypeCashLow, Threshold: dec("10000")})
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return repo, r
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-Actor-ID", "5")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerEvaluateAndAcknowledge(t *testing.T) {
	_, router := newTestRouter(t)

	rr := do(router, http.MethodPost, "/evaluate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var result EvaluationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Len(t, result.Created, 1)

	rr = do(router, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var active eventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &active))
	require.Equal(t, 1, active.Total)

	id := active.Events[0].ID
	rr = do(router, http.MethodPost, "/events/"+strconv.FormatInt(id, 10)+"/ack", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(router, http.MethodPost, "/events/"+strconv.FormatInt(id, 10)+"/ack", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(router, http.MethodGet, "/events?status=acknowledged", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var history eventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Equal(t, 1, history.Total)
	require.NotNil(t, history.Events[0].AcknowledgedBy)
	require.Equal(t, int64(5), *history.Events[0].AcknowledgedBy)

	rr = do(router, http.MethodPost, "/events/404/ack", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerUpdateRule(t *testing.T) {
	_, router := newTestRouter(t)

	rr := do(router, http.MethodPut, "/rules/cash_low", `{"threshold":"25000","enabled":false,"critical_ratio":"0.3"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var rule Rule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rule))
	require.False(t, rule.Enabled)
	require.Equal(t, "25000", rule.Threshold.String())

	rr = do(router, http.MethodPut, "/rules/UNKNOWN", `{"threshold":"1","enabled":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(router, http.MethodPut, "/rules/CASH_LOW", `{"threshold":"abc","enabled":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(router, http.MethodPut, "/rules/EXPENSE_SPIKE", `{"threshold":"1","enabled":true}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(router, http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rules []Rule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rules))
	require.Len(t, rules, 1)
}
