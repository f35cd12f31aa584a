package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/api/httpx"
	"github.com/baharkarakas/credits-backend/internal/api/validate"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/services"
)

type CreditsHandler struct {
	ledger *services.LedgerService
	log    *zap.Logger
}

func NewCreditsHandler(ledger *services.LedgerService, log *zap.Logger) *CreditsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CreditsHandler{ledger: ledger, log: log}
}

func (h *CreditsHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req services.AllocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	if errs := validate.Collect(validate.Required("target_user_id", req.TargetID)); errs != nil {
		httpx.BadRequest(w, "validation failed", errs)
		return
	}
	req.ActorID = uid
	e, err := h.ledger.Allocate(r.Context(), req)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, e)
}

type bulkReq struct {
	Items []services.BulkItem `json:"items"`
}

type bulkResp struct {
	Results   []services.BulkResult `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

func (h *CreditsHandler) BulkAllocate(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req bulkReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	results, err := h.ledger.BulkAllocate(r.Context(), uid, req.Items)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	resp := bulkResp{Results: results}
	for _, res := range results {
		if res.Err == nil {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	status := http.StatusOK
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *CreditsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req services.RedeemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	req.ActorID = uid
	e, err := h.ledger.Redeem(r.Context(), req)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, e)
}

type adjustFunc func(ctx context.Context, req services.AdjustRequest) (models.LedgerEntry, error)

func (h *CreditsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Refund)
}

func (h *CreditsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Adjust)
}

func (h *CreditsHandler) adjust(w http.ResponseWriter, r *http.Request, op adjustFunc) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req services.AdjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	if errs := validate.Collect(validate.Required("target_user_id", req.TargetID)); errs != nil {
		httpx.BadRequest(w, "validation failed", errs)
		return
	}
	req.ActorID = uid
	e, err := op(r.Context(), req)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, e)
}

type fundReq struct {
	Amount int64 `json:"amount"`
}

func (h *CreditsHandler) FundSalesPool(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req fundReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	pool, err := h.ledger.FundSalesPool(r.Context(), services.FundPoolRequest{
		ActorID: uid,
		SalesID: chi.URLParam(r, "userID"),
		Amount:  req.Amount,
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pool)
}

// History serves one page of entries, or every entry as CSV when
// export=csv is set.
func (h *CreditsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !canView(w, r, userID) {
		return
	}
	q, errs := historyQuery(r, userID)
	if errs != nil {
		httpx.BadRequest(w, "invalid query", errs)
		return
	}

	if r.URL.Query().Get("export") == "csv" {
		h.export(w, r, q)
		return
	}

	page, err := h.ledger.GetHistory(r.Context(), q)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func historyQuery(r *http.Request, userID string) (services.HistoryQuery, validate.Errs) {
	v := r.URL.Query()
	q := services.HistoryQuery{UserID: userID}

	var kindErr *validate.ErrField
	if raw := v.Get("kind"); raw != "" {
		k, ok := models.ParseEntryKind(raw)
		if ok {
			q.Kind = &k
		} else {
			kindErr = &validate.ErrField{Field: "kind", Msg: "must be ALLOCATE, REDEEM, REFUND or ADJUSTMENT"}
		}
	}
	from, fromErr := validate.TimeParam("from", v.Get("from"))
	to, toErr := validate.TimeParam("to", v.Get("to"))
	q.From, q.To = from, to

	var limitErr, offsetErr, pageErr *validate.ErrField
	q.Limit, limitErr = validate.IntParam("limit", v.Get("limit"), 0)
	q.Offset, offsetErr = validate.IntParam("offset", v.Get("offset"), 0)
	q.Page, pageErr = validate.IntParam("page", v.Get("page"), 0)

	return q, validate.Collect(kindErr, fromErr, toErr, limitErr, offsetErr, pageErr)
}

func (h *CreditsHandler) export(w http.ResponseWriter, r *http.Request, q services.HistoryQuery) {
	lw := &lazyCSVWriter{w: w, filename: "history-" + q.UserID + ".csv"}
	n, err := h.ledger.ExportHistory(r.Context(), q, lw)
	if err != nil {
		if !lw.started {
			httpx.WriteServiceError(w, err)
			return
		}
		h.log.Warn("history export interrupted",
			zap.String("user_id", q.UserID), zap.Int("rows", n), zap.Error(err))
		return
	}
	if !lw.started {
		lw.begin()
	}
}

// lazyCSVWriter defers the CSV headers until the first byte so that an
// early failure can still be reported as JSON.
type lazyCSVWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (l *lazyCSVWriter) begin() {
	l.started = true
	l.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	l.w.Header().Set("Content-Disposition", `attachment; filename=`+strconv.Quote(l.filename))
	l.w.WriteHeader(http.StatusOK)
}

func (l *lazyCSVWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.begin()
	}
	return l.w.Write(p)
}
