package database

import (
	"time"
)

// Login methods recorded with sessions and login events.
const (
	MethodPassword = "password"
	MethodFace     = "face"
)

// StoredSession is a granted portal session persisted across restarts.
type StoredSession struct {
	ID          string
	IdentityKey string
	Method      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// LoginEvent is one terminal login outcome, granted or not.
type LoginEvent struct {
	ID          string    `json:"id"`
	IdentityKey string    `json:"identity,omitempty"` // empty when no identity was established
	Method      string    `json:"method"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason"`
	Distance    *float64  `json:"distance,omitempty"` // best candidate or verification distance, face logins only
	ClientIP    string    `json:"client_ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Browser     string    `json:"browser,omitempty"`
	OS          string    `json:"os,omitempty"`
	Device      string    `json:"device,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StoredDescriptor is a cached enrollment descriptor keyed by the content
// hash of the image it was computed from.
type StoredDescriptor struct {
	ContentHash string
	Model       string
	Descriptor  []float32
	CreatedAt   time.Time
}
