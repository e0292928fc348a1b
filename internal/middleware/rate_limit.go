package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/deppfellow/user-registry/internal/errs"
	"github.com/deppfellow/user-registry/internal/server"
)

// RateLimitMiddleware limits requests per client IP with an in-memory
// store and reports hits to New Relic.
type RateLimitMiddleware struct {
	server *server.Server
}

func NewRateLimitMiddleware(s *server.Server) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		server: s,
	}
}

// Limit returns the limiter middleware. Requests beyond
// server.rate_limit per second from one IP get a 429.
func (r *RateLimitMiddleware) Limit() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStore(rate.Limit(r.server.Config.Server.RateLimit))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			r.RecordRateLimitHit(c.Path())

			GetLogger(c).Warn().
				Str("identifier", identifier).
				Str("path", c.Path()).
				Msg("rate limit exceeded")

			return &errs.HTTPError{
				Code:    errs.MakeUpperCaseWithUnderscores(http.StatusText(http.StatusTooManyRequests)),
				Message: "rate limit exceeded",
				Status:  http.StatusTooManyRequests,
			}
		},
	})
}

// RecordRateLimitHit sends a RateLimitHit custom event when New Relic is
// enabled.
func (r *RateLimitMiddleware) RecordRateLimitHit(endpoint string) {
	if app := r.server.LoggerService.GetApplication(); app != nil {
		app.RecordCustomEvent("RateLimitHit", map[string]any{
			"endpoint": endpoint,
		})
	}
}
