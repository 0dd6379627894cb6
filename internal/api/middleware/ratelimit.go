package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// rateLimitExpiry is how long an idle client's limiter is kept.
const rateLimitExpiry = 3 * time.Minute

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	RPS   float64 // sustained requests per second per client IP
	Burst int

	// OnDeny is called for every rejected request, e.g. to count it.
	OnDeny func()
}

// NewRateLimit limits requests per client IP with an in-memory token bucket store.
// Rejected requests get 429 with a JSON error body.
func NewRateLimit(config RateLimitConfig) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(config.RPS),
		Burst:     config.Burst,
		ExpiresIn: rateLimitExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: identifyFailed,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			if config.OnDeny != nil {
				config.OnDeny()
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// identifyFailed rejects a request whose client identifier cannot be
// extracted with the same 429 as an exhausted bucket.
func identifyFailed(_ echo.Context, _ error) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
}
