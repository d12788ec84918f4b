package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/login"
)

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "valid credentials",
			body:        `{"email":"ann@example.com","password":"s3cret-pass"}`,
			wantStatus:  http.StatusOK,
			wantSuccess: true,
			wantMessage: login.PublicMessage(login.ReasonOK),
		},
		{
			name:        "identity field",
			body:        `{"identity":"ANN@example.com","password":"s3cret-pass"}`,
			wantStatus:  http.StatusOK,
			wantSuccess: true,
			wantMessage: login.PublicMessage(login.ReasonOK),
		},
		{
			name:        "wrong password",
			body:        `{"email":"ann@example.com","password":"nope-nope"}`,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid email or password.",
		},
		{
			name:        "unknown user gets the same message",
			body:        `{"email":"ghost@example.com","password":"s3cret-pass"}`,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid email or password.",
		},
		{
			name:        "blocked user with correct password",
			body:        `{"email":"bob@example.com","password":"s3cret-pass"}`,
			wantStatus:  http.StatusForbidden,
			wantMessage: "Access denied.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPortal()
			p.enroll("ann@example.com", facematch.Descriptor{1, 0, 0}, false)
			p.enroll("bob@example.com", facematch.Descriptor{0, 1, 0}, true)
			handler := NewAuthHandler(p.engine(t), p.sm)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(tt.body))
			recorder := httptest.NewRecorder()
			handler.Login(recorder, req)

			assertStatusCode(t, recorder, tt.wantStatus)
			var resp LoginResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", resp.Message, tt.wantMessage)
			}

			cookie := sessionCookie(recorder)
			if tt.wantSuccess {
				if cookie == nil {
					t.Fatal("expected a session cookie")
				}
				if resp.SessionID == "" || resp.Identity != "ann@example.com" {
					t.Errorf("unexpected response %+v", resp)
				}
			} else if cookie != nil {
				t.Error("failed login must not set a session cookie")
			}
		})
	}
}

func TestAuthHandler_LoginBadRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", `{not json`, errInvalidRequestBody},
		{"missing password", `{"email":"ann@example.com"}`, "identity and password are required"},
		{"missing identity", `{"password":"x"}`, "identity and password are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPortal()
			handler := NewAuthHandler(p.engine(t), p.sm)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(tt.body))
			recorder := httptest.NewRecorder()
			handler.Login(recorder, req)

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.wantErr)
		})
	}
}

func TestAuthHandler_LoginRecordsAudit(t *testing.T) {
	p := newPortal()
	p.enroll("ann@example.com", facematch.Descriptor{1, 0, 0}, false)
	handler := NewAuthHandler(p.engine(t), p.sm)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		bytes.NewBufferString(`{"email":"ann@example.com","password":"wrong-one"}`))
	handler.Login(httptest.NewRecorder(), req)

	events := p.events.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].Reason != string(login.ReasonWrongPassword) || events[0].Success {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestAuthHandler_StatusAndLogout(t *testing.T) {
	p := newPortal()
	p.enroll("ann@example.com", facematch.Descriptor{1, 0, 0}, false)
	handler := NewAuthHandler(p.engine(t), p.sm)

	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		bytes.NewBufferString(`{"email":"ann@example.com","password":"s3cret-pass"}`)))
	cookie := sessionCookie(loginRec)
	if cookie == nil {
		t.Fatal("login did not set a cookie")
	}

	status := func() StatusResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
		req.AddCookie(cookie)
		recorder := httptest.NewRecorder()
		handler.Status(recorder, req)
		assertStatusCode(t, recorder, http.StatusOK)
		var resp StatusResponse
		parseJSONResponse(t, recorder, &resp)
		return resp
	}

	if got := status(); !got.Authenticated || got.Identity != "ann@example.com" || got.Method != login.MethodPassword {
		t.Errorf("status before logout = %+v", got)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	logoutReq.AddCookie(cookie)
	logoutRec := httptest.NewRecorder()
	handler.Logout(logoutRec, logoutReq)
	assertStatusCode(t, logoutRec, http.StatusOK)

	if got := status(); got.Authenticated {
		t.Errorf("status after logout = %+v, want unauthenticated", got)
	}
}
