package database

import (
	"context"
)

// SessionStore persists granted sessions.
type SessionStore interface {
	// Save stores or replaces a session
	Save(ctx context.Context, s StoredSession) error
	// Get retrieves a session by ID, returns nil if not found or expired
	Get(ctx context.Context, id string) (*StoredSession, error)
	// Delete removes a session
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes all expired sessions and returns the count deleted
	DeleteExpired(ctx context.Context) (int64, error)
}

// LoginEventWriter records the login audit trail.
type LoginEventWriter interface {
	Record(ctx context.Context, e LoginEvent) error
}

// LoginEventReader lists recent login events.
type LoginEventReader interface {
	// Recent returns up to limit events, newest first
	Recent(ctx context.Context, limit int) ([]LoginEvent, error)
}

// DescriptorCache stores enrollment descriptors so that building a pool
// does not re-run extraction for unchanged images. It is never consulted
// for final re-verification.
type DescriptorCache interface {
	// Get returns the cached descriptor, nil if absent
	Get(ctx context.Context, contentHash, model string) (*StoredDescriptor, error)
	Put(ctx context.Context, d StoredDescriptor) error
}
