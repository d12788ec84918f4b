package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/staff-portal/internal/config"
	"github.com/kozaktomas/staff-portal/internal/database/mock"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/kozaktomas/staff-portal/internal/web/handlers"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	*Server
	dir    *mock.MockDirectory
	events *mock.MockLoginEvents
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()
	dir := mock.NewMockDirectory(directory.UserRecord{
		Email:        "ann@example.com",
		PasswordHash: "s3cret-pass",
		Role:         "Staff",
	})
	images := mock.NewMockImageStore()
	events := mock.NewMockLoginEvents()
	registry := prometheus.NewRegistry()
	metrics, err := login.NewMetrics(login.MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	sm := middleware.NewSessionManager("test-secret", mock.NewMockSessionStore())

	newEngine := func() *login.Session {
		return login.NewSession(login.Deps{
			Directory: dir,
			Images:    images,
			Extractor: mock.NewMockExtractor(),
			Recorder:  sm,
			Events:    events,
			Metrics:   metrics,
			Logger:    zaptest.NewLogger(t),
		}, login.Options{Kind: directory.IdentityEmail, Frames: 2, MinFrames: 1})
	}

	cfg := &config.Config{
		Directory: config.DirectoryConfig{IdentityKey: "email"},
		Web:       config.WebConfig{Host: "127.0.0.1", Port: 0, LoginRateLimit: 100},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	engine := newEngine()
	t.Cleanup(func() { engine.Close() })

	s := NewServer(cfg, Deps{
		Engine:         engine,
		FaceSessions:   handlers.NewFaceSessions(newEngine, time.Minute, 0),
		SessionManager: sm,
		Directory:      dir,
		Images:         images,
		Events:         events,
		Gatherer:       registry,
		Logger:         zaptest.NewLogger(t),
	})
	t.Cleanup(func() { s.deps.FaceSessions.CloseAll() })
	return &testServer{Server: s, dir: dir, events: events}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	ts.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestServer_Routes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/api/v1/health", http.StatusOK},
		{"status anonymous", http.MethodGet, "/api/v1/auth/status", http.StatusOK},
		{"users requires auth", http.MethodGet, "/api/v1/users", http.StatusUnauthorized},
		{"set face requires auth", http.MethodPost, "/api/v1/users/face", http.StatusUnauthorized},
		{"events require auth", http.MethodGet, "/api/v1/login-events", http.StatusUnauthorized},
		{"cancel unknown face session", http.MethodDelete, "/api/v1/face/sessions/nope", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v1/photos", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := ts.do(httptest.NewRequest(tt.method, tt.path, nil))
			if recorder.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d\nBody: %s", tt.method, tt.path, recorder.Code, tt.wantStatus, recorder.Body.String())
			}
		})
	}
}

func TestServer_FaceSessionOpenIsRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Web.LoginRateLimit = 1 })

	open := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/face/sessions", nil)
		req.RemoteAddr = addr
		return ts.do(req).Code
	}

	if code := open("198.51.100.7:1000"); code != http.StatusCreated {
		t.Fatalf("first open = %d, want %d", code, http.StatusCreated)
	}
	limited := false
	for range 5 {
		if open("198.51.100.7:1000") == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected a burst of session opens to be rate limited")
	}
	if n := ts.deps.FaceSessions.Len(); n >= 6 {
		t.Errorf("registry holds %d sessions after a limited burst", n)
	}
	if code := open("198.51.100.8:1000"); code != http.StatusCreated {
		t.Errorf("open from another client = %d, want %d", code, http.StatusCreated)
	}
}

func TestServer_PasswordLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		bytes.NewBufferString(`{"email":"ann@example.com","password":"s3cret-pass"}`))
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "kiosk-test")
	recorder := ts.do(req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d\nBody: %s", recorder.Code, recorder.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range recorder.Result().Cookies() {
		if c.Name == "staff_portal_session" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("login did not set the session cookie")
	}

	usersReq := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	usersReq.AddCookie(cookie)
	if got := ts.do(usersReq); got.Code != http.StatusOK {
		t.Errorf("authenticated users list = %d", got.Code)
	}

	events := ts.events.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].ClientIP != "192.0.2.10" || events[0].UserAgent != "kiosk-test" {
		t.Errorf("audit event client = %q / %q", events[0].ClientIP, events[0].UserAgent)
	}
	if user, _ := ts.dir.User("ann@example.com"); user.LastLogin == "" {
		t.Error("last login was not recorded")
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)

	ts.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		bytes.NewBufferString(`{"email":"ann@example.com","password":"wrong"}`)))

	recorder := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `reason="wrong-password"`) {
		t.Errorf("metrics missing the failed attempt:\n%s", recorder.Body.String())
	}
}

func TestServer_Shutdown(t *testing.T) {
	ts := newTestServer(t)

	fs, _ := ts.deps.FaceSessions.Open(context.Background())
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-fs.Engine.Done():
	default:
		t.Error("shutdown left a face session open")
	}
}
