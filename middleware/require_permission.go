package middleware

import (
	"net/http"

	"github.com/venrik/authgate"
)

// RequirePermission returns middleware that runs [Guard] and then rejects the
// request with 403 unless the authenticated user holds the named permission.
func RequirePermission(engine *authgate.Engine, permission string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if err := engine.CheckPermission(r.Context(), res.UserID, permission); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}))
	}
}
