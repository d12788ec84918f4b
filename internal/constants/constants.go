// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Upload constants
const (
	// MaxImageSize is the maximum size in bytes of one face image or frame
	MaxImageSize = 8 << 20

	// MaxFormSize is the maximum size in bytes of a whole multipart request
	MaxFormSize = 64 << 20
)

// Login event listing constants
const (
	// DefaultEventsLimit is the number of login events returned without ?limit
	DefaultEventsLimit = 50

	// MaxEventsLimit caps ?limit on the login events endpoint
	MaxEventsLimit = 500
)

// Session lifetimes
const (
	// SessionDuration is how long a granted portal session stays valid
	SessionDuration = 12 * time.Hour

	// FaceSessionTTL is how long an idle face-login session keeps its pool
	FaceSessionTTL = 10 * time.Minute

	// MaxFaceSessions bounds open face-login sessions when none is configured
	MaxFaceSessions = 32

	// RateLimitTTL is how long per-client rate limit buckets are kept
	RateLimitTTL = 10 * time.Minute
)

// Background job intervals, in minutes
const (
	FaceSessionSweepMinutes = 1
	SessionCleanupMinutes   = 15
)
