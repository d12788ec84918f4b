package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/staff-portal/internal/constants"
	"github.com/kozaktomas/staff-portal/internal/database"
)

const (
	sessionCookieName = "staff_portal_session"
	sessionDuration   = constants.SessionDuration
)

// Session is a granted portal session.
type Session struct {
	ID          string
	IdentityKey string
	Method      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// SessionManager creates and validates portal sessions. Session IDs travel
// in an HMAC-signed cookie; the sessions themselves live in a
// database.SessionStore.
type SessionManager struct {
	secret []byte
	store  database.SessionStore
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a session manager. A nil store keeps sessions
// in memory, so they do not survive a restart.
func NewSessionManager(secret string, store database.SessionStore) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "staff-portal-dev-secret-change-in-production"
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &SessionManager{
		secret: []byte(secret),
		store:  store,
		ttl:    sessionDuration,
		now:    time.Now,
	}
}

// Record creates a session for identityKey and returns its ID. It is the
// login engine's SessionRecorder.
func (sm *SessionManager) Record(ctx context.Context, identityKey, method string) (string, error) {
	s, err := sm.CreateSession(ctx, identityKey, method)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// CreateSession creates and stores a new session.
func (sm *SessionManager) CreateSession(ctx context.Context, identityKey, method string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := sm.now()
	session := &Session{
		ID:          base64.RawURLEncoding.EncodeToString(idBytes),
		IdentityKey: identityKey,
		Method:      method,
		CreatedAt:   now,
		ExpiresAt:   now.Add(sm.ttl),
	}

	err := sm.store.Save(ctx, database.StoredSession{
		ID:          session.ID,
		IdentityKey: session.IdentityKey,
		Method:      session.Method,
		CreatedAt:   session.CreatedAt,
		ExpiresAt:   session.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

// GetSession returns the session with id, nil if it is unknown or expired.
func (sm *SessionManager) GetSession(ctx context.Context, id string) *Session {
	stored, err := sm.store.Get(ctx, id)
	if err != nil || stored == nil {
		return nil
	}
	if !stored.ExpiresAt.After(sm.now()) {
		return nil
	}
	return &Session{
		ID:          stored.ID,
		IdentityKey: stored.IdentityKey,
		Method:      stored.Method,
		CreatedAt:   stored.CreatedAt,
		ExpiresAt:   stored.ExpiresAt,
	}
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, id string) error {
	return sm.store.Delete(ctx, id)
}

// CleanupExpired removes expired sessions from the store.
func (sm *SessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	return sm.store.DeleteExpired(ctx)
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.signData(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
		MaxAge:   int(session.ExpiresAt.Sub(sm.now()).Seconds()),
	})
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from the cookie or a bearer
// token.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id, signature, ok := strings.Cut(cookie.Value, ".")
		if ok && sm.verifySignature(id, signature) {
			if session := sm.GetSession(r.Context(), id); session != nil {
				return session
			}
		}
	}

	if id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && id != "" {
		return sm.GetSession(r.Context(), id)
	}
	return nil
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SessionData is the JSON form of a session.
type SessionData struct {
	SessionID   string `json:"session_id"`
	IdentityKey string `json:"identity"`
	Method      string `json:"method"`
	ExpiresAt   string `json:"expires_at"`
}

func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID:   s.ID,
		IdentityKey: s.IdentityKey,
		Method:      s.Method,
		ExpiresAt:   s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}

// MemorySessionStore is a database.SessionStore kept in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]database.StoredSession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]database.StoredSession),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(ctx context.Context, s database.StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*database.StoredSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
