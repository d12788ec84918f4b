// Package directory is the User Directory boundary: the spreadsheet (or SQL)
// table of staff accounts that holds credentials, roles, the blocked flag,
// last-login timestamps and enrollment image references.
//
// Adapters convert the storage representation into UserRecord. Anything
// string-typed in storage (most notably the blocked flag) is coerced here so
// callers only ever see canonical Go values.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// IdentityKind selects which field correlates a face match with a record.
type IdentityKind string

const (
	IdentityEmail IdentityKind = "email"
	IdentityName  IdentityKind = "name"
)

// ParseIdentityKind accepts "email" or "name".
func ParseIdentityKind(s string) (IdentityKind, error) {
	switch IdentityKind(s) {
	case IdentityEmail, IdentityName:
		return IdentityKind(s), nil
	default:
		return "", fmt.Errorf("unknown identity kind %q", s)
	}
}

// UserRecord is one staff account.
type UserRecord struct {
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	PasswordHash  string `json:"-"`
	Role          string `json:"role"`
	Blocked       bool   `json:"blocked"`
	LastLogin     string `json:"last_login,omitempty"`
	FaceImageFile string `json:"face_image_file,omitempty"`
}

// IdentityKey returns the field used as identity key, as stored.
func (u UserRecord) IdentityKey(kind IdentityKind) string {
	if kind == IdentityName {
		return u.Name
	}
	return u.Email
}

// HasFace reports whether the user has an enrollment image.
func (u UserRecord) HasFace() bool {
	return u.FaceImageFile != ""
}

// Directory reads and updates staff accounts.
type Directory interface {
	ListUsers(ctx context.Context) ([]UserRecord, error)
	// UpdateLastLogin sets the last-login timestamp of the user whose
	// identity field (as stored) equals key.
	UpdateLastLogin(ctx context.Context, key string, ts time.Time) error
}

// Writer is implemented by directories that accept new accounts.
type Writer interface {
	AddUser(ctx context.Context, user UserRecord) error
	SetFaceImage(ctx context.Context, key, faceImageFile string) error
}

// ReadWriter is a directory that supports registration.
type ReadWriter interface {
	Directory
	Writer
}

// FormatTimestamp renders a last-login timestamp the way it is stored.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

// APIError is a non-2xx response from a remote directory.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("directory: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a 404 from a remote directory.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 404
}
