package login

import (
	"context"
	"errors"
	"strings"

	"github.com/kozaktomas/staff-portal/internal/credential"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/logger"
	"go.uber.org/zap"
)

// LoginWithPassword checks, in order, that the account exists, that it is
// not blocked, and that the password matches. A blocked account is refused
// even when the password is correct.
func (s *Session) LoginWithPassword(ctx context.Context, key, password string) Result {
	start := s.now()
	ctx, release := s.bind(ctx)
	defer release()

	res := s.loginWithPassword(ctx, strings.TrimSpace(key), password)
	res.Method = MethodPassword
	s.finish(ctx, res, start)
	return res
}

func (s *Session) loginWithPassword(ctx context.Context, key, password string) Result {
	res := Result{IdentityKey: key}
	if s.cancelled(ctx) {
		res.Reason = ReasonCancelled
		return res
	}
	if key == "" {
		res.Reason = ReasonUserNotFound
		return res
	}

	user, err := s.cache.Lookup(ctx, key, directory.Fresh)
	switch {
	case err == nil:
	case s.cancelled(ctx):
		res.Reason = ReasonCancelled
		return res
	case errors.Is(err, directory.ErrUserNotFound):
		res.Reason = ReasonUserNotFound
		return res
	default:
		s.log.Error("directory read failed", zap.Error(err))
		res.Reason = ReasonServiceUnavailable
		return res
	}
	res.IdentityKey = user.IdentityKey(s.opts.Kind)

	if user.Blocked {
		res.Reason = ReasonBlocked
		return res
	}

	ok, err := credential.Verify(user.PasswordHash, password)
	if err != nil {
		s.log.Error("credential check failed",
			zap.String("identity", logger.MaskEmail(key)),
			zap.Error(err))
		res.Reason = ReasonServiceUnavailable
		return res
	}
	if !ok {
		res.Reason = ReasonWrongPassword
		return res
	}

	return s.grant(ctx, user, MethodPassword)
}
