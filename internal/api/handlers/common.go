package handlers

import (
	"net/http"

	"github.com/baharkarakas/credits-backend/internal/api/httpx"
	"github.com/baharkarakas/credits-backend/internal/middleware"
	"github.com/baharkarakas/credits-backend/internal/models"
)

// caller returns the authenticated user id, writing 401 when there is none.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
		return "", false
	}
	return uid, true
}

// canView lets users read their own records and ADMIN read anyone's.
func canView(w http.ResponseWriter, r *http.Request, userID string) bool {
	uid, ok := caller(w, r)
	if !ok {
		return false
	}
	if role, _ := middleware.Role(r.Context()); uid != userID && role != models.RoleAdmin {
		httpx.WriteError(w, http.StatusForbidden, "unauthorized", "cannot view another user's records", nil)
		return false
	}
	return true
}
