package login

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/staff-portal/internal/camera"
	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/fingerprint"
	"go.uber.org/zap"
)

// capture reads up to opts.Frames frames and returns the normalized
// descriptors of those that contain a face. Frames without a face are
// dropped; fewer than opts.MinFrames survivors is a no-face-detected
// failure.
func (s *Session) capture(ctx context.Context, src camera.Source) ([]facematch.Descriptor, Reason) {
	live := make([]facematch.Descriptor, 0, s.opts.Frames)
	attempts := 0

	delay := s.opts.FrameDelay
	if !camera.IsLive(src) {
		delay = 0
	}

	for i := range s.opts.Frames {
		if i > 0 && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, ReasonCancelled
			}
		}
		if s.cancelled(ctx) {
			return nil, ReasonCancelled
		}

		frame, err := src.Next(ctx)
		if err != nil {
			if s.cancelled(ctx) {
				return nil, ReasonCancelled
			}
			if errors.Is(err, camera.ErrExhausted) {
				break
			}
			s.log.Warn("camera frame failed", zap.Int("frame", i), zap.Error(err))
			return nil, ReasonCameraError
		}
		attempts++

		d, err := s.deps.Extractor.Describe(ctx, frame)
		switch {
		case err == nil && !d.Finite():
			s.log.Warn("frame dropped, descriptor is not finite", zap.Int("frame", i))
		case err == nil:
			live = append(live, facematch.Normalize(d))
		case s.cancelled(ctx):
			return nil, ReasonCancelled
		case errors.Is(err, fingerprint.ErrNoFace), errors.Is(err, fingerprint.ErrBadImage):
			s.log.Debug("frame dropped", zap.Int("frame", i), zap.Error(err))
		default:
			s.log.Error("descriptor extraction failed", zap.Int("frame", i), zap.Error(err))
			return nil, ReasonModelLoadError
		}
	}

	if len(live) < s.opts.MinFrames {
		s.log.Info("not enough frames with a face",
			zap.Int("frames", attempts),
			zap.Int("with_face", len(live)),
			zap.Int("required", s.opts.MinFrames))
		return nil, ReasonNoFaceDetected
	}
	return live, ""
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
