package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/staff-portal/internal/database/mock"
	"github.com/kozaktomas/staff-portal/internal/login"
)

func TestNewSessionManager(t *testing.T) {
	sm := NewSessionManager("", nil)
	if sm == nil {
		t.Fatal("NewSessionManager returned nil")
		return
	}
	if len(sm.secret) == 0 {
		t.Error("secret is empty, want development default")
	}
	if _, ok := sm.store.(*MemorySessionStore); !ok {
		t.Errorf("store = %T, want *MemorySessionStore", sm.store)
	}
}

func TestSessionManager_CreateSession(t *testing.T) {
	store := mock.NewMockSessionStore()
	sm := NewSessionManager("test-secret", store)

	session, err := sm.CreateSession(context.Background(), "alice@x.com", "face")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.IdentityKey != "alice@x.com" {
		t.Errorf("IdentityKey = %s, want alice@x.com", session.IdentityKey)
	}
	if session.Method != "face" {
		t.Errorf("Method = %s, want face", session.Method)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
	if store.Count() != 1 {
		t.Errorf("store holds %d sessions, want 1", store.Count())
	}
}

func TestSessionManager_CreateSessionStoreError(t *testing.T) {
	store := mock.NewMockSessionStore()
	store.SaveError = errors.New("db down")
	sm := NewSessionManager("test-secret", store)

	if _, err := sm.CreateSession(context.Background(), "alice@x.com", "password"); err == nil {
		t.Fatal("expected error when the store fails")
	}
}

func TestSessionManager_Record(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	var recorder login.SessionRecorder = sm

	id, err := recorder.Record(context.Background(), "bob@x.com", "password")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	session := sm.GetSession(context.Background(), id)
	if session == nil {
		t.Fatal("recorded session not found")
		return
	}
	if session.IdentityKey != "bob@x.com" {
		t.Errorf("IdentityKey = %s, want bob@x.com", session.IdentityKey)
	}
}

func TestSessionManager_GetSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	ctx := context.Background()

	session, _ := sm.CreateSession(ctx, "alice@x.com", "password")

	retrieved := sm.GetSession(ctx, session.ID)
	if retrieved == nil {
		t.Fatal("GetSession() returned nil for existing session")
		return
	}
	if retrieved.IdentityKey != "alice@x.com" {
		t.Errorf("IdentityKey = %s, want alice@x.com", retrieved.IdentityKey)
	}

	if sm.GetSession(ctx, "nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}
}

func TestSessionManager_ExpiredSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	ctx := context.Background()

	session, _ := sm.CreateSession(ctx, "alice@x.com", "password")

	sm.now = func() time.Time { return time.Now().Add(sessionDuration + time.Minute) }
	if sm.GetSession(ctx, session.ID) != nil {
		t.Error("GetSession() should return nil for an expired session")
	}
}

func TestSessionManager_DeleteSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	ctx := context.Background()

	session, _ := sm.CreateSession(ctx, "alice@x.com", "password")

	if err := sm.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	if sm.GetSession(ctx, session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
}

func TestSessionManager_CleanupExpired(t *testing.T) {
	store := NewMemorySessionStore()
	sm := NewSessionManager("test-secret", store)
	ctx := context.Background()

	sm.CreateSession(ctx, "alice@x.com", "password")
	sm.CreateSession(ctx, "bob@x.com", "face")

	store.now = func() time.Time { return time.Now().Add(sessionDuration + time.Minute) }
	n, err := sm.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CleanupExpired() removed %d, want 2", n)
	}
}

func TestSessionManager_SignAndVerify(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)

	data := "test-session-id"
	signature := sm.signData(data)

	if !sm.verifySignature(data, signature) {
		t.Error("verifySignature() should return true for valid signature")
	}
	if sm.verifySignature(data, "invalid-signature") {
		t.Error("verifySignature() should return false for invalid signature")
	}
	if sm.verifySignature("different-data", signature) {
		t.Error("verifySignature() should return false for different data")
	}

	other := NewSessionManager("other-secret", nil)
	if other.verifySignature(data, signature) {
		t.Error("verifySignature() should return false under a different secret")
	}
}

func TestSessionManager_SetSessionCookie(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	session, _ := sm.CreateSession(context.Background(), "alice@x.com", "password")

	tests := []struct {
		name       string
		tls        bool
		forwarded  string
		wantSecure bool
	}{
		{name: "plain http", wantSecure: false},
		{name: "forwarded https", forwarded: "https", wantSecure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			w := httptest.NewRecorder()
			sm.SetSessionCookie(w, req, session)

			cookies := w.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("expected 1 cookie, got %d", len(cookies))
			}
			c := cookies[0]
			if c.Name != sessionCookieName {
				t.Errorf("cookie name = %s, want %s", c.Name, sessionCookieName)
			}
			if !c.HttpOnly {
				t.Error("cookie should be HttpOnly")
			}
			if c.Secure != tt.wantSecure {
				t.Errorf("Secure = %v, want %v", c.Secure, tt.wantSecure)
			}
		})
	}
}

func TestSessionManager_GetSessionFromRequest(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	session, _ := sm.CreateSession(context.Background(), "alice@x.com", "password")

	tests := []struct {
		name   string
		cookie string
		bearer string
		wantOK bool
	}{
		{name: "signed cookie", cookie: session.ID + "." + sm.signData(session.ID), wantOK: true},
		{name: "tampered signature", cookie: session.ID + ".bogus", wantOK: false},
		{name: "unsigned cookie", cookie: session.ID, wantOK: false},
		{name: "bearer token", bearer: session.ID, wantOK: true},
		{name: "unknown bearer", bearer: "nope", wantOK: false},
		{name: "nothing", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			got := sm.GetSessionFromRequest(req)
			if (got != nil) != tt.wantOK {
				t.Errorf("GetSessionFromRequest() = %v, want ok=%v", got, tt.wantOK)
			}
		})
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", cookies[0].MaxAge)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	session, _ := sm.CreateSession(context.Background(), "alice@x.com", "password")

	var seen *Session
	handler := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="staff-portal"` {
			t.Errorf("WWW-Authenticate = %q", got)
		}
	})

	t.Run("passes session through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if seen == nil || seen.IdentityKey != "alice@x.com" {
			t.Errorf("session in context = %+v", seen)
		}
		if got := w.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("Cache-Control = %q, want no-store", got)
		}
	})
}

func TestGetSessionFromContext_Empty(t *testing.T) {
	if GetSessionFromContext(context.Background()) != nil {
		t.Error("expected nil session from empty context")
	}
}

func TestClientInfo(t *testing.T) {
	var got login.Client
	handler := ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = login.ClientFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:51234"
	req.Header.Set("User-Agent", "kiosk/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.IP != "10.1.2.3" {
		t.Errorf("IP = %q, want 10.1.2.3", got.IP)
	}
	if got.UserAgent != "kiosk/1.0" {
		t.Errorf("UserAgent = %q, want kiosk/1.0", got.UserAgent)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS("https://portal.example.com/, https://kiosk.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantStatus int
	}{
		{"allowed origin", http.MethodGet, "https://portal.example.com", false, "https://portal.example.com", http.StatusTeapot},
		{"second allowed origin", http.MethodPost, "https://kiosk.example.com", false, "https://kiosk.example.com", http.StatusTeapot},
		{"localhost is not implied", http.MethodGet, "http://localhost:5173", false, "", http.StatusTeapot},
		{"foreign origin", http.MethodGet, "https://evil.example.com", false, "", http.StatusTeapot},
		{"same origin", http.MethodGet, "", false, "", http.StatusTeapot},
		{"preflight", http.MethodOptions, "https://portal.example.com", true, "https://portal.example.com", http.StatusNoContent},
		{"foreign preflight", http.MethodOptions, "https://evil.example.com", true, "", http.StatusNoContent},
		{"plain options reaches the router", http.MethodOptions, "https://portal.example.com", false, "https://portal.example.com", http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); (got != "") != (tt.wantOrigin != "") {
				t.Errorf("Allow-Methods = %q for origin %q", got, tt.origin)
			}
			if w.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", w.Header().Get("Vary"))
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	handler := CORS("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want none", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := w.Header().Get("Content-Security-Policy")
	for _, directive := range []string{
		"media-src 'self' blob: mediastream:",
		"connect-src 'self'",
		"style-src 'self';",
		"frame-ancestors 'none'",
	} {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP %q lacks %q", csp, directive)
		}
	}
	if strings.Contains(csp, "unsafe-inline") {
		t.Errorf("CSP allows inline code: %q", csp)
	}
	if got := w.Header().Get("Permissions-Policy"); got != "camera=(self), microphone=(), geolocation=()" {
		t.Errorf("Permissions-Policy = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", code)
	}
	limited := false
	for range 5 {
		if send() == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected a burst of requests to be rate limited")
	}
}
