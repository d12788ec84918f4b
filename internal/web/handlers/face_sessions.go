package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/staff-portal/internal/constants"
	"github.com/kozaktomas/staff-portal/internal/login"
)

// ErrTooManyFaceSessions is returned by Open when the registry is full.
var ErrTooManyFaceSessions = errors.New("too many open face sessions")

// FaceSession is one open face-login screen.
type FaceSession struct {
	ID        string
	Engine    *login.Session
	CreatedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

func (f *FaceSession) touch(now time.Time) {
	f.mu.Lock()
	f.lastUsed = now
	f.mu.Unlock()
}

func (f *FaceSession) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

// FaceSessions manages open face-login sessions. Each owns its own enrolled
// pool, so at most limit are open and an idle one is closed after ttl.
type FaceSessions struct {
	newEngine func() *login.Session
	ttl       time.Duration
	limit     int
	now       func() time.Time

	sessions map[string]*FaceSession
	mu       sync.RWMutex
}

// NewFaceSessions creates a registry. newEngine builds an uninitialized
// login session.
func NewFaceSessions(newEngine func() *login.Session, ttl time.Duration, limit int) *FaceSessions {
	if ttl <= 0 {
		ttl = constants.FaceSessionTTL
	}
	if limit <= 0 {
		limit = constants.MaxFaceSessions
	}
	return &FaceSessions{
		newEngine: newEngine,
		ttl:       ttl,
		limit:     limit,
		now:       time.Now,
		sessions:  make(map[string]*FaceSession),
	}
}

// Open creates and initializes a face-login session. The session is
// registered even when Init fails; logins on it then report why. A full
// registry fails with ErrTooManyFaceSessions before any pool is loaded.
func (m *FaceSessions) Open(ctx context.Context) (*FaceSession, error) {
	now := m.now()
	fs := &FaceSession{
		ID:        uuid.NewString(),
		Engine:    m.newEngine(),
		CreatedAt: now,
		lastUsed:  now,
	}

	m.mu.Lock()
	if len(m.sessions) >= m.limit {
		m.mu.Unlock()
		fs.Engine.Close()
		return nil, ErrTooManyFaceSessions
	}
	m.sessions[fs.ID] = fs
	m.mu.Unlock()

	return fs, fs.Engine.Init(ctx)
}

// Get retrieves a session by ID and marks it used.
func (m *FaceSessions) Get(id string) *FaceSession {
	m.mu.RLock()
	fs := m.sessions[id]
	m.mu.RUnlock()
	if fs != nil {
		fs.touch(m.now())
	}
	return fs
}

// Cancel aborts any capture in progress and closes the session.
func (m *FaceSessions) Cancel(id string) bool {
	m.mu.Lock()
	fs, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	fs.Engine.Close()
	return true
}

// Sweep closes sessions idle for longer than the ttl and returns how many
// were closed.
func (m *FaceSessions) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*FaceSession
	for id, fs := range m.sessions {
		if fs.idleSince().Before(cutoff) {
			expired = append(expired, fs)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, fs := range expired {
		fs.Engine.Close()
	}
	return len(expired)
}

// Len returns the number of open sessions.
func (m *FaceSessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session, used on shutdown.
func (m *FaceSessions) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*FaceSession)
	m.mu.Unlock()

	for _, fs := range sessions {
		fs.Engine.Close()
	}
}
