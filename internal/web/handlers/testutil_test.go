package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/staff-portal/internal/database/mock"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"go.uber.org/zap/zaptest"
)

// jpegMagic makes test payloads sniff as image/jpeg
const jpegMagic = "\xff\xd8\xff\xe0"

// portal bundles the mocks behind the handlers
type portal struct {
	dir      *mock.MockDirectory
	images   *mock.MockImageStore
	ext      *mock.MockExtractor
	events   *mock.MockLoginEvents
	sm       *middleware.SessionManager
	frameSeq int
}

func newPortal() *portal {
	return &portal{
		dir:    mock.NewMockDirectory(),
		images: mock.NewMockImageStore(),
		ext:    mock.NewMockExtractor(),
		events: mock.NewMockLoginEvents(),
		sm:     middleware.NewSessionManager("test-secret", mock.NewMockSessionStore()),
	}
}

// enroll adds a user with password "s3cret-pass" whose enrollment image
// yields d.
func (p *portal) enroll(email string, d facematch.Descriptor, blocked bool) {
	ref := imagestore.FileName(email)
	img := []byte(jpegMagic + "enroll:" + email)
	p.images.SetImage(ref, img)
	p.ext.Set(img, d)
	_ = p.dir.AddUser(context.Background(), directory.UserRecord{
		Email:         email,
		PasswordHash:  "s3cret-pass",
		Role:          "Staff",
		Blocked:       blocked,
		FaceImageFile: ref,
	})
}

// frame returns frame bytes that the extractor maps to d.
func (p *portal) frame(d facematch.Descriptor) []byte {
	p.frameSeq++
	img := []byte(fmt.Sprintf("%sframe-%d", jpegMagic, p.frameSeq))
	if d != nil {
		p.ext.Set(img, d)
	}
	return img
}

func (p *portal) engine(t *testing.T) *login.Session {
	t.Helper()
	s := login.NewSession(login.Deps{
		Directory: p.dir,
		Images:    p.images,
		Extractor: p.ext,
		Recorder:  p.sm,
		Events:    p.events,
		Logger:    zaptest.NewLogger(t),
	}, login.Options{
		Kind:           directory.IdentityEmail,
		Thresholds:     facematch.Thresholds{Accept: 0.5, AmbiguityDelta: 0.1},
		FinalThreshold: 0.45,
		Frames:         3,
		MinFrames:      2,
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func (p *portal) faceSessions(t *testing.T) *FaceSessions {
	t.Helper()
	fs := NewFaceSessions(func() *login.Session { return p.engine(t) }, time.Minute, 0)
	t.Cleanup(fs.CloseAll)
	return fs
}

// authedRequest attaches a live session for identity to r
func (p *portal) authedRequest(t *testing.T, r *http.Request, identity string) *http.Request {
	t.Helper()
	s, err := p.sm.CreateSession(r.Context(), identity, login.MethodPassword)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), s))
}

type formFile struct {
	field string
	name  string
	data  []byte
}

// multipartRequest builds a multipart/form-data request
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// sessionCookie returns the session cookie set on the response, if any
func sessionCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range recorder.Result().Cookies() {
		if c.Name == "staff_portal_session" {
			return c
		}
	}
	return nil
}
