package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/credits-backend/internal/api/httpx"
	"github.com/baharkarakas/credits-backend/internal/api/validate"
	"github.com/baharkarakas/credits-backend/internal/services"
)

type LeaderboardHandler struct {
	board *services.LeaderboardService
}

func NewLeaderboardHandler(board *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{board: board}
}

func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	limit, limitErr := validate.IntParam("limit", r.URL.Query().Get("limit"), 0)
	force, forceErr := validate.BoolParam("force_refresh", r.URL.Query().Get("force_refresh"))
	if errs := validate.Collect(limitErr, forceErr); errs != nil {
		httpx.BadRequest(w, "invalid query", errs)
		return
	}
	res, err := h.board.Get(r.Context(), limit, force)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	switch {
	case res.Stale:
		w.Header().Set("X-Cache", "STALE")
	case res.Cached:
		w.Header().Set("X-Cache", "HIT")
	default:
		w.Header().Set("X-Cache", "MISS")
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *LeaderboardHandler) UserRank(w http.ResponseWriter, r *http.Request) {
	rank, err := h.board.UserRank(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rank)
}

func (h *LeaderboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.board.Stats(r.Context())
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *LeaderboardHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Invalidate(r.Context()); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}
