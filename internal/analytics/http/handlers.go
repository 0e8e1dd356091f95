package analytichttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/analytics"
	"github.com/odyssey-erp/odyssey-ledger/internal/analytics/export"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// AgingService is the aging contract used by the handler.
type AgingService interface {
	ComputeAging(ctx context.Context, q analytics.AgingQuery) (analytics.AgingReport, error)
}

// Handler serves aging reports over HTTP.
type Handler struct {
	logger  *slog.Logger
	service AgingService
	csvPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AgingService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service, now: time.Now}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) parseQuery(r *http.Request) (analytics.AgingQuery, error) {
	asOf, err := httpx.DateQuery(r, "as_of", shared.DateOnly(h.now()))
	if err != nil {
		return analytics.AgingQuery{}, err
	}
	side, err := analytics.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		return analytics.AgingQuery{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	include, err := httpx.BoolQuery(r, "include_not_yet_due")
	if err != nil {
		return analytics.AgingQuery{}, err
	}
	return analytics.AgingQuery{AsOf: asOf, Side: side, IncludeNotYetDue: include}, nil
}

func (h *Handler) load(r *http.Request) (analytics.AgingReport, error) {
	q, err := h.parseQuery(r)
	if err != nil {
		return analytics.AgingReport{}, err
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	return h.service.ComputeAging(ctx, q)
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	report, err := h.load(r)
	if err != nil {
		h.respondError(w, "compute aging", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.load(r)
	if err != nil {
		h.respondError(w, "compute aging", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteAgingCSV(buf, report); err != nil {
		h.respondError(w, "write aging csv", err)
		return
	}

	filename := fmt.Sprintf("aging-%s-%s.csv", report.Side, report.AsOf.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.Classify(err) == shared.ClassInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
