package alerts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes alert rules and events over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /api/alerts endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rules", h.ListRules)
	r.Put("/rules/{type}", h.UpdateRule)
	r.Post("/evaluate", h.Evaluate)
	r.Get("/events", h.Events)
	r.Post("/events/{id}/ack", h.Acknowledge)
}

type updateRuleRequest struct {
	Threshold     string  `json:"threshold" validate:"required,numeric"`
	Enabled       *bool   `json:"enabled" validate:"required"`
	CriticalRatio *string `json:"critical_ratio" validate:"omitempty,numeric"`
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.respondError(w, "list alert rules", err)
		return
	}
	if rules == nil {
		rules = []Rule{}
	}
	httpx.JSON(w, http.StatusOK, rules)
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	typ, err := ParseType(chi.URLParam(r, "type"))
	if err != nil {
		h.respondError(w, "update alert rule", err)
		return
	}
	var req updateRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "threshold must be a decimal")
		return
	}
	in := UpdateRuleInput{Type: typ, Threshold: threshold, Enabled: *req.Enabled}
	if req.CriticalRatio != nil {
		ratio, err := decimal.NewFromString(*req.CriticalRatio)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "critical_ratio must be a decimal")
			return
		}
		in.CriticalRatio = &ratio
	}
	rule, err := h.service.UpdateRule(r.Context(), in)
	if err != nil {
		h.respondError(w, "update alert rule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Evaluate(r.Context(), time.Time{})
	if err != nil {
		h.respondError(w, "evaluate alerts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type eventsResponse struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// Events lists unacknowledged events, or the filtered history when
// status=all|acknowledged, type or severity is given.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("status") == "" && q.Get("type") == "" && q.Get("severity") == "" {
		events, err := h.service.ActiveEvents(r.Context())
		if err != nil {
			h.respondError(w, "list alert events", err)
			return
		}
		if events == nil {
			events = []Event{}
		}
		httpx.JSON(w, http.StatusOK, eventsResponse{Events: events, Total: len(events)})
		return
	}
	filter := HistoryFilter{Severity: Severity(q.Get("severity"))}
	if raw := q.Get("type"); raw != "" {
		typ, err := ParseType(raw)
		if err != nil {
			h.respondError(w, "list alert events", err)
			return
		}
		filter.Type = typ
	}
	switch q.Get("status") {
	case "", "all":
	case "active":
		v := false
		filter.Acknowledged = &v
	case "acknowledged":
		v := true
		filter.Acknowledged = &v
	default:
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "status must be active, acknowledged or all")
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	events, total, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, "alert history", err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	httpx.JSON(w, http.StatusOK, eventsResponse{Events: events, Total: total})
}

func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	event, err := h.service.Acknowledge(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, "acknowledge alert", err)
		return
	}
	httpx.JSON(w, http.StatusOK, event)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrRuleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownType), errors.Is(err, ErrInvalidRule):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
