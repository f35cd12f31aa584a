package middleware

import (
	"net/http"
	"slices"

	"github.com/baharkarakas/credits-backend/internal/api/httpx"
	"github.com/baharkarakas/credits-backend/internal/models"
)

// RequireRole allows only callers whose token carries one of roles. It must
// run after Auth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := Role(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
				return
			}
			if !slices.Contains(roles, role) {
				httpx.WriteError(w, http.StatusForbidden, "unauthorized", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
