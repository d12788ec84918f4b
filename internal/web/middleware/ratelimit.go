package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/kozaktomas/staff-portal/internal/constants"
)

// RateLimit limits requests per client IP to perSecond. It guards the login
// endpoints against password and face guessing and bounds how often a client
// can make the portal load the enrolled pool.
func RateLimit(perSecond float64) func(http.Handler) http.Handler {
	message, _ := json.Marshal(map[string]string{
		"error": "too many requests, slow down",
	})

	lmt := tollbooth.NewLimiter(perSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: constants.RateLimitTTL,
	})
	lmt.SetMessageContentType("application/json")
	lmt.SetMessage(string(message))

	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}
