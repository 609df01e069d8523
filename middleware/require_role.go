package middleware

import (
	"net/http"

	"github.com/venrik/authgate"
)

// RequireRole returns middleware that runs [Guard] and then rejects the
// request with 403 unless the authenticated user holds the named role.
func RequireRole(engine *authgate.Engine, roleName string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if err := engine.CheckRole(r.Context(), res.UserID, roleName); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}))
	}
}
