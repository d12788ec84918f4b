package login

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/staff-portal/internal/database"
)

// SessionRecorder persists the local session created by a successful login
// and returns its ID.
type SessionRecorder interface {
	Record(ctx context.Context, identityKey, method string) (string, error)
}

// MemoryRecorder keeps granted sessions in memory. It serves the CLI and
// tests; the HTTP server records through its session manager instead.
type MemoryRecorder struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions []database.StoredSession
}

func NewMemoryRecorder(ttl time.Duration) *MemoryRecorder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryRecorder{ttl: ttl, now: time.Now}
}

func (r *MemoryRecorder) Record(ctx context.Context, identityKey, method string) (string, error) {
	now := r.now()
	s := database.StoredSession{
		ID:          uuid.NewString(),
		IdentityKey: identityKey,
		Method:      method,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	}
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
	return s.ID, nil
}

// Sessions returns the recorded sessions in grant order.
func (r *MemoryRecorder) Sessions() []database.StoredSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]database.StoredSession, len(r.sessions))
	copy(out, r.sessions)
	return out
}
