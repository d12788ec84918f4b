package middleware

import (
	"net/http"
	"strings"
)

// parseAllowedOrigins splits a comma-separated origin list into a set.
// Trailing slashes are dropped since browsers never send them.
func parseAllowedOrigins(raw string) map[string]struct{} {
	origins := make(map[string]struct{})
	for o := range strings.SplitSeq(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return origins
}

// CORS returns middleware that echoes credentialed CORS headers for the
// configured origins only. With no origins configured the portal is
// same-origin. A preflight is answered here whether or not the origin is
// allowed; the browser enforces the missing headers.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	allowed := parseAllowedOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// kioskCSP lets the kiosk page use the camera and upload frames to the
// portal itself, and nothing else.
const kioskCSP = "default-src 'self'; img-src 'self' data: blob:; media-src 'self' blob: mediastream:; " +
	"connect-src 'self'; style-src 'self'; object-src 'none'; base-uri 'none'; frame-ancestors 'none'"

// SecurityHeaders returns middleware that sets the kiosk CSP and other security headers.
// Camera access is granted to the portal's own origin only.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", kioskCSP)
			h.Set("Permissions-Policy", "camera=(self), microphone=(), geolocation=()")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	}
}
