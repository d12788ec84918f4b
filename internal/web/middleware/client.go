package middleware

import (
	"net"
	"net/http"

	"github.com/kozaktomas/staff-portal/internal/login"
)

// ClientInfo attaches the caller's IP and user agent to the request context
// so login attempts can be audited. Run it after chi's RealIP.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := login.WithClient(r.Context(), login.Client{
			IP:        ip,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
