// internal/middleware/token.go
//
// Shared-secret guard for machine-to-machine endpoints.
//
// RequireToken rejects requests whose Authorization header is not
// "Bearer <token>".  Comparison is constant-time.  An empty token disables
// the check, which keeps local development friction-free.

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// RequireToken returns middleware enforcing the bearer token.
func RequireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				zap.S().Warnw("rejected bearer token", "path", r.URL.Path, "present", ok)
				w.Header().Set("WWW-Authenticate", `Bearer realm="mailingtools"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
