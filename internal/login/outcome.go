package login

import (
	"github.com/kozaktomas/staff-portal/internal/directory"
)

// Reason is the internal outcome of a login attempt. It is logged and
// audited as is; callers facing end users translate it with PublicMessage.
type Reason string

const (
	ReasonOK Reason = "ok"

	// Biometric outcomes.
	ReasonNoFaceDetected     Reason = "no-face-detected"
	ReasonNotRecognized      Reason = "not-recognized"
	ReasonAmbiguous          Reason = "ambiguous"
	ReasonVerificationFailed Reason = "verification-failed"
	ReasonNoEnrolledFaces    Reason = "no-enrolled-faces"

	ReasonBlocked Reason = "blocked"

	// Environment outcomes.
	ReasonCameraError Reason = "camera-error"
	ReasonBusy        Reason = "busy"
	ReasonCancelled   Reason = "cancelled"

	// Integrity outcomes.
	ReasonModelLoadError     Reason = "model-load-error"
	ReasonServiceUnavailable Reason = "service-unavailable"

	// Password outcomes.
	ReasonUserNotFound  Reason = "user-not-found"
	ReasonWrongPassword Reason = "wrong-password"
)

const (
	msgWelcome        = "Welcome back."
	msgNotRecognized  = "We could not verify your face. Please try again or sign in with your password."
	msgBadCredentials = "Invalid email or password."
	msgAccessDenied   = "Access denied."
	msgCamera         = "The camera is not available. Check that it is connected and allowed, then try again."
	msgBusy           = "A login attempt is already in progress."
	msgCancelled      = "Login cancelled."
	msgUnavailable    = "Service unavailable. Please try again later."
)

// PublicMessage is the only text about an attempt that may be shown to the
// person logging in. Biometric failures share one message so the response
// does not reveal which stage rejected the face.
func PublicMessage(r Reason) string {
	switch r {
	case ReasonOK:
		return msgWelcome
	case ReasonNoFaceDetected, ReasonNotRecognized, ReasonAmbiguous,
		ReasonVerificationFailed, ReasonNoEnrolledFaces:
		return msgNotRecognized
	case ReasonUserNotFound, ReasonWrongPassword:
		return msgBadCredentials
	case ReasonBlocked:
		return msgAccessDenied
	case ReasonCameraError:
		return msgCamera
	case ReasonBusy:
		return msgBusy
	case ReasonCancelled:
		return msgCancelled
	default:
		return msgUnavailable
	}
}

// Result is the terminal state of one login attempt.
type Result struct {
	OK bool
	// User is the granted account, nil unless OK.
	User      *directory.UserRecord
	SessionID string
	Reason    Reason
	Method    string
	// IdentityKey is the identity the attempt concerned: the typed key for
	// password logins, the best candidate for face logins that got that far.
	IdentityKey string
	// Distance is the re-verification distance when re-verification ran,
	// otherwise the best candidate's score.
	Distance float64
	// Gap between best and runner-up, face logins only.
	Gap float64
}

// Message is PublicMessage(r.Reason).
func (r Result) Message() string {
	return PublicMessage(r.Reason)
}
