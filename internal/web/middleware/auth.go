package middleware

import (
	"context"
	"net/http"
)

type sessionKey struct{}

// RequireAuth rejects requests without a live portal session. Both the
// session cookie and an Authorization bearer token are accepted, so the
// challenge names the bearer scheme.
func RequireAuth(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="staff-portal"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			// Responses behind a session carry staff data.
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// GetSessionFromContext returns the session RequireAuth attached, or nil.
func GetSessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}

// SetSessionInContext attaches session to ctx the way RequireAuth does.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}
