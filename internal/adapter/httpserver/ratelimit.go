package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	apperrors "github.com/pscheid92/pollpulse/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter throttles writes (poll creation, votes, feedback) with one
// token bucket per actor, falling back to the client IP for anonymous calls.
// Reads and streams are never limited. Must run after actorMiddleware.
// m may be nil.
func newRateLimiter(ratePerSecond float64, burst int, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper:             isReadOnly,
		IdentifierExtractor: rateLimitKey,
		Store:               store,
		ErrorHandler: func(c echo.Context, err error) error {
			return HandleError(c, apperrors.InternalError("rate limiter failed", err))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if m != nil {
				m.Throttled.WithLabelValues(c.Path()).Inc()
			}
			return HandleError(c, apperrors.RateLimitedError("rate limit exceeded"))
		},
	})
}

func isReadOnly(c echo.Context) bool {
	switch c.Request().Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func rateLimitKey(c echo.Context) (string, error) {
	if id := actorID(c); id != "" {
		return "actor:" + id, nil
	}
	return "ip:" + c.RealIP(), nil
}
