package login

import (
	"context"
	"time"

	"github.com/kozaktomas/staff-portal/internal/database"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/logger"
	"go.uber.org/zap"
)

const auditTimeout = 5 * time.Second

// grant records the last-login timestamp and creates the local session.
// The directory update is best-effort; failing to create the session is not.
func (s *Session) grant(ctx context.Context, user directory.UserRecord, method string) Result {
	key := user.IdentityKey(s.opts.Kind)
	now := s.now()

	if err := s.cache.UpdateLastLogin(ctx, user, now); err != nil {
		s.log.Warn("updating last login failed",
			zap.String("identity", logger.MaskEmail(key)),
			zap.Error(err))
	} else {
		user.LastLogin = directory.FormatTimestamp(now)
	}

	id, err := s.deps.Recorder.Record(ctx, key, method)
	if err != nil {
		s.log.Error("recording session failed",
			zap.String("identity", logger.MaskEmail(key)),
			zap.Error(err))
		return Result{IdentityKey: key, Reason: ReasonServiceUnavailable}
	}

	return Result{
		OK:          true,
		User:        &user,
		SessionID:   id,
		Reason:      ReasonOK,
		IdentityKey: key,
	}
}

// finish logs, counts and audits a terminal result.
func (s *Session) finish(ctx context.Context, res Result, start time.Time) {
	elapsed := s.now().Sub(start)
	fields := []zap.Field{
		zap.String("method", res.Method),
		zap.String("reason", string(res.Reason)),
		zap.String("identity", logger.MaskEmail(res.IdentityKey)),
		zap.Duration("elapsed", elapsed),
	}
	if res.Method == MethodFace && res.IdentityKey != "" {
		fields = append(fields, zap.Float64("distance", res.Distance), zap.Float64("gap", res.Gap))
	}

	switch res.Reason {
	case ReasonOK:
		s.log.Info("login granted", fields...)
	case ReasonModelLoadError, ReasonServiceUnavailable:
		s.log.Error("login failed", fields...)
	case ReasonBlocked:
		s.log.Warn("login refused", fields...)
	default:
		s.log.Info("login failed", fields...)
	}

	s.deps.Metrics.observe(res, elapsed)
	s.audit(ctx, res)
}

func (s *Session) audit(ctx context.Context, res Result) {
	if s.deps.Events == nil {
		return
	}
	client := ClientFromContext(ctx)
	e := database.LoginEvent{
		IdentityKey: res.IdentityKey,
		Method:      res.Method,
		Success:     res.OK,
		Reason:      string(res.Reason),
		ClientIP:    client.IP,
		UserAgent:   client.UserAgent,
		CreatedAt:   s.now(),
	}
	if res.Method == MethodFace && res.IdentityKey != "" {
		d := res.Distance
		e.Distance = &d
	}

	// Cancelled attempts are audited too.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.deps.Events.Record(ctx, e); err != nil {
		s.log.Warn("recording login event failed", zap.Error(err))
	}
}

// Client identifies the device an attempt came from.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// WithClient attaches client details to ctx for the audit trail.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func ClientFromContext(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}
