package login

import (
	"context"
	"errors"

	"github.com/kozaktomas/staff-portal/internal/camera"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/fingerprint"
	"github.com/kozaktomas/staff-portal/internal/imagestore"
	"github.com/kozaktomas/staff-portal/internal/logger"
	"go.uber.org/zap"
)

// LoginWithFace captures frames from src, matches them against the pool,
// re-verifies the match against the identity's current enrollment image and
// checks the blocked flag with a fresh directory read before granting.
// Only one face login runs at a time; a concurrent call returns busy.
func (s *Session) LoginWithFace(ctx context.Context, src camera.Source) Result {
	start := s.now()
	if !s.trigger.TryLock() {
		res := Result{Method: MethodFace, Reason: ReasonBusy}
		s.finish(ctx, res, start)
		return res
	}
	defer s.trigger.Unlock()

	ctx, release := s.bind(ctx)
	defer release()

	res := s.loginWithFace(ctx, src)
	res.Method = MethodFace
	s.finish(ctx, res, start)
	return res
}

func (s *Session) loginWithFace(ctx context.Context, src camera.Source) Result {
	if s.cancelled(ctx) {
		return Result{Reason: ReasonCancelled}
	}

	pool := s.enrolledPool()
	if !pool.Ready() {
		s.mu.Lock()
		reason := s.initReason
		s.mu.Unlock()
		if reason == "" {
			reason = ReasonServiceUnavailable
		}
		return Result{Reason: reason}
	}

	s.setSource(src)
	defer s.clearSource()

	live, reason := s.capture(ctx, src)
	if reason != "" {
		return Result{Reason: reason}
	}

	scores, err := facematch.Score(live, pool)
	if err != nil {
		s.log.Error("scoring failed", zap.Error(err))
		if errors.Is(err, facematch.ErrDimensionMismatch) {
			return Result{Reason: ReasonModelLoadError}
		}
		return Result{Reason: ReasonServiceUnavailable}
	}

	dec := facematch.Decide(scores, s.opts.Thresholds)
	res := Result{
		IdentityKey: dec.Best.IdentityKey,
		Distance:    dec.Best.Distance,
		Gap:         dec.Gap,
	}
	switch dec.Outcome {
	case facematch.OutcomeNoCandidates:
		res.Reason = ReasonNoEnrolledFaces
		return res
	case facematch.OutcomeNotRecognized:
		res.Reason = ReasonNotRecognized
		return res
	case facematch.OutcomeAmbiguous:
		res.Reason = ReasonAmbiguous
		return res
	}

	user, reason := s.freshUser(ctx, dec.Best.IdentityKey)
	if reason != "" {
		res.Reason = reason
		return res
	}
	if user.Blocked {
		res.Reason = ReasonBlocked
		return res
	}

	v, reason := s.reverify(ctx, user, live)
	if v != nil {
		res.Distance = v.Distance
	}
	if reason != "" {
		res.Reason = reason
		return res
	}

	// Gate: the record may have changed while re-verification ran.
	user, reason = s.freshUser(ctx, dec.Best.IdentityKey)
	if reason != "" {
		res.Reason = reason
		return res
	}
	if user.Blocked {
		res.Reason = ReasonBlocked
		return res
	}

	granted := s.grant(ctx, user, MethodFace)
	granted.Distance = res.Distance
	granted.Gap = res.Gap
	return granted
}

// freshUser reads the matched identity's current record, bypassing the
// session cache.
func (s *Session) freshUser(ctx context.Context, key string) (directory.UserRecord, Reason) {
	user, err := s.cache.Lookup(ctx, key, directory.Fresh)
	switch {
	case err == nil:
		return user, ""
	case s.cancelled(ctx):
		return user, ReasonCancelled
	case errors.Is(err, directory.ErrUserNotFound):
		// Enrolled when the pool was loaded, gone since.
		s.log.Warn("matched identity no longer in directory", zap.String("identity", logger.MaskEmail(key)))
		return user, ReasonVerificationFailed
	default:
		s.log.Error("directory read failed", zap.Error(err))
		return user, ReasonServiceUnavailable
	}
}

// reverify extracts a fresh descriptor from the user's current enrollment
// image and compares it with the live capture.
func (s *Session) reverify(ctx context.Context, user directory.UserRecord, live []facematch.Descriptor) (*facematch.Verification, Reason) {
	if !user.HasFace() {
		return nil, ReasonVerificationFailed
	}

	img, err := s.deps.Images.Fetch(ctx, user.FaceImageFile)
	switch {
	case err == nil:
	case s.cancelled(ctx):
		return nil, ReasonCancelled
	case errors.Is(err, imagestore.ErrNotFound):
		s.log.Warn("enrollment image missing", zap.String("image", user.FaceImageFile))
		return nil, ReasonVerificationFailed
	default:
		s.log.Error("enrollment image fetch failed", zap.Error(err))
		return nil, ReasonServiceUnavailable
	}

	fresh, err := s.deps.Extractor.Describe(ctx, img)
	switch {
	case err == nil:
	case s.cancelled(ctx):
		return nil, ReasonCancelled
	case errors.Is(err, fingerprint.ErrNoFace), errors.Is(err, fingerprint.ErrBadImage):
		s.log.Warn("no face in enrollment image", zap.String("image", user.FaceImageFile), zap.Error(err))
		return nil, ReasonVerificationFailed
	default:
		s.log.Error("enrollment descriptor extraction failed", zap.Error(err))
		return nil, ReasonModelLoadError
	}

	if !fresh.Finite() {
		s.log.Warn("enrollment descriptor is not finite", zap.String("image", user.FaceImageFile))
		return nil, ReasonVerificationFailed
	}

	v, err := facematch.Verify(live, facematch.Normalize(fresh), s.opts.FinalThreshold)
	if err != nil {
		s.log.Error("re-verification failed", zap.Error(err))
		return nil, ReasonModelLoadError
	}
	if !v.Passed {
		return &v, ReasonVerificationFailed
	}
	return &v, ""
}
