package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/credits-backend/internal/api/httpx"
	"github.com/baharkarakas/credits-backend/internal/api/validate"
	"github.com/baharkarakas/credits-backend/internal/services"
)

type UsersHandler struct {
	users  *services.UserService
	ledger *services.LedgerService
}

func NewUsersHandler(users *services.UserService, ledger *services.LedgerService) *UsersHandler {
	return &UsersHandler{users: users, ledger: ledger}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, limitErr := validate.IntParam("limit", r.URL.Query().Get("limit"), 0)
	offset, offsetErr := validate.IntParam("offset", r.URL.Query().Get("offset"), 0)
	if errs := validate.Collect(limitErr, offsetErr); errs != nil {
		httpx.BadRequest(w, "invalid query", errs)
		return
	}
	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !canView(w, r, userID) {
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !canView(w, r, userID) {
		return
	}
	v, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

type roleReq struct {
	Role string `json:"role"`
}

func (h *UsersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	var req roleReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	if errs := validate.Collect(validate.Required("role", req.Role)); errs != nil {
		httpx.BadRequest(w, "validation failed", errs)
		return
	}
	u, err := h.users.ChangeRole(r.Context(), uid, chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *UsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	uid, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.users.Deactivate(r.Context(), uid, chi.URLParam(r, "userID")); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
