package journals

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
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

type lineRequest struct {
	AccountID int64    `json:"account_id" validate:"required"`
	Side      string   `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Amount    int64    `json:"amount"`
	Tags      []string `json:"tags" validate:"omitempty,dive,required"`
}

type entryRequest struct {
	Date         string        `json:"date" validate:"required"`
	Reference    string        `json:"reference" validate:"max=64"`
	Description  string        `json:"description" validate:"max=500"`
	SourceModule string        `json:"source_module" validate:"max=64"`
	SourceID     string        `json:"source_id" validate:"omitempty,uuid"`
	Lines        []lineRequest `json:"lines" validate:"dive"`
}

func (req entryRequest) toDraft(actorID int64) (Draft, error) {
	date, err := shared.ParseDate(req.Date)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: date must be YYYY-MM-DD", httpx.ErrValidation)
	}
	d := Draft{
		Date:         date,
		Reference:    req.Reference,
		Description:  req.Description,
		SourceModule: req.SourceModule,
		PostedBy:     actorID,
	}
	if req.SourceID != "" {
		d.SourceID = uuid.MustParse(req.SourceID)
	}
	for _, l := range req.Lines {
		d.Lines = append(d.Lines, DraftLine{AccountID: l.AccountID, Side: accounts.Side(l.Side), Amount: l.Amount, Tags: l.Tags})
	}
	return d, nil
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type lineResponse struct {
	ID        int64    `json:"id"`
	AccountID int64    `json:"account_id"`
	Side      string   `json:"side"`
	Amount    int64    `json:"amount"`
	Tags      []string `json:"tags,omitempty"`
}

type entryResponse struct {
	ID           int64          `json:"id"`
	PeriodID     *int64         `json:"period_id,omitempty"`
	Date         string         `json:"date"`
	Reference    string         `json:"reference,omitempty"`
	Description  string         `json:"description"`
	Status       EntryStatus    `json:"status"`
	SourceModule string         `json:"source_module,omitempty"`
	SourceID     *uuid.UUID     `json:"source_id,omitempty"`
	ReversesID   *int64         `json:"reverses_id,omitempty"`
	VoidedByID   *int64         `json:"voided_by_id,omitempty"`
	VoidReason   string         `json:"void_reason,omitempty"`
	PostedAt     *time.Time     `json:"posted_at,omitempty"`
	VoidedAt     *time.Time     `json:"voided_at,omitempty"`
	Lines        []lineResponse `json:"lines"`
}

func toResponse(e Entry) entryResponse {
	out := entryResponse{
		ID:           e.ID,
		PeriodID:     e.PeriodID,
		Date:         e.Date.Format(shared.DateLayout),
		Reference:    e.Reference,
		Description:  e.Description,
		Status:       e.Status,
		SourceModule: e.SourceModule,
		ReversesID:   e.ReversesID,
		VoidedByID:   e.VoidedByID,
		VoidReason:   e.VoidReason,
		PostedAt:     e.PostedAt,
		VoidedAt:     e.VoidedAt,
		Lines:        make([]lineResponse, 0, len(e.Lines)),
	}
	if e.SourceID != uuid.Nil {
		id := e.SourceID
		out.SourceID = &id
	}
	for _, l := range e.Lines {
		out.Lines = append(out.Lines, lineResponse{ID: l.ID, AccountID: l.AccountID, Side: string(l.Side), Amount: l.Amount, Tags: l.Tags})
	}
	return out
}

func (h *Handler) decodeDraft(r *http.Request) (Draft, error) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		return Draft{}, err
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Draft{}, err
	}
	return req.toDraft(actorID)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	draft, err := h.decodeDraft(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Post(r.Context(), draft)
	if err != nil {
		h.respondError(w, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(entry))
}

func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.decodeDraft(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.SaveDraft(r.Context(), draft)
	if err != nil {
		h.respondError(w, "save draft", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(entry))
}

func (h *Handler) PostDraft(w http.ResponseWriter, r *http.Request) {
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
	entry, err := h.service.PostDraft(r.Context(), id, actorID)
	if err != nil {
		h.respondError(w, "post draft", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
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
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reversal, err := h.service.Void(r.Context(), VoidInput{EntryID: id, ActorID: actorID, Reason: req.Reason})
	if err != nil {
		h.respondError(w, "void journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(reversal))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.Classify(err) == shared.ClassInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

type balanceResponse struct {
	AccountID int64  `json:"account_id"`
	AsOf      string `json:"as_of"`
	Balance   int64  `json:"balance"`
}

// Balance serves GET /api/accounts/{id}/balance?as_of=YYYY-MM-DD.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.DateQuery(r, "as_of", shared.DateOnly(h.service.now()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.AccountBalance(r.Context(), id, asOf)
	if err != nil {
		h.respondError(w, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{AccountID: id, AsOf: asOf.Format(shared.DateLayout), Balance: balance})
}

type ledgerRowResponse struct {
	EntryID     int64  `json:"entry_id"`
	Reference   string `json:"reference"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
	Balance     int64  `json:"balance"`
}

type ledgerResponse struct {
	AccountID int64               `json:"account_id"`
	Code      string              `json:"code"`
	From      string              `json:"from"`
	To        string              `json:"to"`
	Opening   int64               `json:"opening"`
	Closing   int64               `json:"closing"`
	Rows      []ledgerRowResponse `json:"rows"`
}

// Ledger serves GET /api/accounts/{id}/ledger?from=&to=.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	today := shared.DateOnly(h.service.now())
	to, err := httpx.DateQuery(r, "to", today)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.DateQuery(r, "from", time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	gl, err := h.service.GeneralLedger(r.Context(), id, from, to)
	if err != nil {
		h.respondError(w, "general ledger", err)
		return
	}
	out := ledgerResponse{
		AccountID: gl.Account.ID,
		Code:      gl.Account.Code,
		From:      gl.From.Format(shared.DateLayout),
		To:        gl.To.Format(shared.DateLayout),
		Opening:   gl.Opening,
		Closing:   gl.Closing,
		Rows:      make([]ledgerRowResponse, 0, len(gl.Rows)),
	}
	for _, row := range gl.Rows {
		out.Rows = append(out.Rows, ledgerRowResponse{
			EntryID:     row.EntryID,
			Reference:   row.Reference,
			Date:        row.Date.Format(shared.DateLayout),
			Description: row.Description,
			Debit:       row.Debit,
			Credit:      row.Credit,
			Balance:     row.Balance,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
