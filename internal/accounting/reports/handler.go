package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /api/reports endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/profit-loss", h.ProfitAndLoss)
	r.Get("/balance-sheet", h.BalanceSheet)
}

type rangeResponse[T any] struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Report T      `json:"report"`
}

// dateRange defaults to the month containing today.
func (h *Handler) dateRange(r *http.Request) (time.Time, time.Time, error) {
	today := shared.DateOnly(h.service.now())
	to, err := httpx.DateQuery(r, "to", today)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, err := httpx.DateQuery(r, "from", time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "trial balance", err)
		return
	}
	if !tb.Balanced() {
		h.logger.Error("trial balance out of balance",
			slog.Int64("debit", tb.TotalDebit),
			slog.Int64("credit", tb.TotalCredit))
	}
	httpx.JSON(w, http.StatusOK, rangeResponse[TrialBalance]{
		From: from.Format(shared.DateLayout), To: to.Format(shared.DateLayout), Report: tb,
	})
}

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "profit and loss", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rangeResponse[ProfitAndLoss]{
		From: from.Format(shared.DateLayout), To: to.Format(shared.DateLayout), Report: pl,
	})
}

type balanceSheetResponse struct {
	AsOf   string       `json:"as_of"`
	Report BalanceSheet `json:"report"`
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of", shared.DateOnly(h.service.now()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceSheetResponse{AsOf: asOf.Format(shared.DateLayout), Report: bs})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.Classify(err) == shared.ClassInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
