package periods

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /api/periods endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Provision)
	r.Get("/resolve", h.Resolve)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/balances", h.Snapshots)
	r.Post("/{id}/close", h.Close)
}

type provisionRequest struct {
	Year  int `json:"year" validate:"required,gte=1900,lte=9999"`
	Month int `json:"month" validate:"omitempty,gte=1,lte=12"`
}

type periodResponse struct {
	ID             int64        `json:"id"`
	Code           string       `json:"code"`
	StartDate      string       `json:"start_date"`
	EndDate        string       `json:"end_date"`
	Status         PeriodStatus `json:"status"`
	CloseStartedAt *time.Time   `json:"close_started_at,omitempty"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	ClosedBy       *int64       `json:"closed_by,omitempty"`
}

func toResponse(p Period) periodResponse {
	return periodResponse{
		ID:             p.ID,
		Code:           p.Code(),
		StartDate:      p.StartDate.Format(shared.DateLayout),
		EndDate:        p.EndDate.Format(shared.DateLayout),
		Status:         p.Status,
		CloseStartedAt: p.CloseStartedAt,
		ClosedAt:       p.ClosedAt,
		ClosedBy:       p.ClosedBy,
	}
}

func toResponses(list []Period) []periodResponse {
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p))
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "year must be numeric")
			return
		}
		year = v
	}
	list, err := h.service.List(r.Context(), year)
	if err != nil {
		h.respondError(w, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(list))
}

// Provision creates a single month, or the whole year when month is omitted.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Month == 0 {
		list, err := h.service.ProvisionYear(r.Context(), req.Year)
		if err != nil {
			h.respondError(w, "provision year", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toResponses(list))
		return
	}
	p, err := h.service.Provision(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		h.respondError(w, "provision period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	date, err := httpx.DateQuery(r, "date", shared.DateOnly(h.service.now()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Resolve(r.Context(), date)
	if err != nil {
		h.respondError(w, "resolve period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

type snapshotResponse struct {
	AccountID int64  `json:"account_id"`
	Opening   int64  `json:"opening"`
	Closing   *int64 `json:"closing,omitempty"`
}

func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snaps, err := h.service.Snapshots(r.Context(), id)
	if err != nil {
		h.respondError(w, "period snapshots", err)
		return
	}
	out := make([]snapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotResponse{AccountID: s.AccountID, Opening: s.Opening, Closing: s.Closing})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Close(r.Context(), CloseInput{PeriodID: id, ActorID: actorID})
	if err != nil {
		h.respondError(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.Classify(err) == shared.ClassInternal {
		h.logger.Error(op, slog.Any("error", err), slog.String("class", string(shared.Classify(err))))
	}
	httpx.RespondError(w, err)
}
