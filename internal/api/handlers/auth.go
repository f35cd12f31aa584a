package handlers

import (
	"net/http"

	"github.com/baharkarakas/credits-backend/internal/api/httpx"
	"github.com/baharkarakas/credits-backend/internal/api/validate"
	"github.com/baharkarakas/credits-backend/internal/auth"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/services"
)

type AuthHandler struct {
	users *services.UserService
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	if errs := validate.Collect(
		validate.Required("username", req.Username),
		validate.Required("email", req.Email),
		validate.Required("password", req.Password),
	); errs != nil {
		httpx.BadRequest(w, "validation failed", errs)
		return
	}
	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	auth.Pair
	User *models.User `json:"user,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error(), nil)
		return
	}
	if errs := validate.Collect(
		validate.Required("email", req.Email),
		validate.Required("password", req.Password),
	); errs != nil {
		httpx.BadRequest(w, "validation failed", errs)
		return
	}
	pair, u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{Pair: pair, User: &u})
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		httpx.BadRequest(w, "refresh_token is required", nil)
		return
	}
	pair, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{Pair: pair})
}
