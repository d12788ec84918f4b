package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
)

// AuthHandler handles password login and session endpoints
type AuthHandler struct {
	engine         *login.Session
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler. engine only serves password
// logins, so it does not need Init.
func NewAuthHandler(engine *login.Session, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		engine:         engine,
		sessionManager: sm,
	}
}

// loginRequest accepts the identity under "identity", "email" or "name".
type loginRequest struct {
	identity string
	password string
}

func (l *loginRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal login request: %w", err)
	}
	for _, k := range []string{"identity", "email", "name"} {
		if v := raw[k]; v != "" {
			l.identity = v
			break
		}
	}
	l.password = raw["password"]
	return nil
}

// LoginResponse is returned by both password and face login
type LoginResponse struct {
	Success   bool   `json:"success"`
	Identity  string `json:"identity,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Message   string `json:"message"`
}

// Login handles password login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.identity == "" || req.password == "" {
		respondError(w, http.StatusBadRequest, "identity and password are required")
		return
	}

	res := h.engine.LoginWithPassword(r.Context(), req.identity, req.password)
	respondLogin(w, r, h.sessionManager, res)
}

// respondLogin writes a login result, setting the session cookie on success.
func respondLogin(w http.ResponseWriter, r *http.Request, sm *middleware.SessionManager, res login.Result) {
	if !res.OK {
		respondJSON(w, statusFor(res.Reason), LoginResponse{Message: res.Message()})
		return
	}

	session := sm.GetSession(r.Context(), res.SessionID)
	if session == nil {
		respondJSON(w, http.StatusServiceUnavailable, LoginResponse{
			Message: login.PublicMessage(login.ReasonServiceUnavailable),
		})
		return
	}
	sm.SetSessionCookie(w, r, session)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		Identity:  session.IdentityKey,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		Message:   res.Message(),
	})
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}

	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity,omitempty"`
	Method        string `json:"method,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status checks if the user is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		Identity:      session.IdentityKey,
		Method:        session.Method,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
