// internal/middleware/security.go
//
// Security-header middleware.
//
// Injects standard headers on every response:
//
//   • Strict-Transport-Security  –  forces HTTPS (2 years)
//   • Content-Security-Policy   –  nothing is ever embedded or scripted
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • Referrer-Policy           –  the pixel must not leak the mail client URL
//
// Notes
// -----
// • Headers are set *before* next.ServeHTTP; a handler may override any of
//   them by calling Header().Set itself.
// • X-Frame-Options is omitted.  The pixel is an <img>, never a frame, and
//   CSP frame-ancestors already covers frames.

package middleware

import "net/http"

var securityHeaders = [...][2]string{
	{"Strict-Transport-Security", "max-age=63072000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
}

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			if h.Get(kv[0]) == "" {
				h.Set(kv[0], kv[1])
			}
		}
		next.ServeHTTP(w, r)
	})
}
