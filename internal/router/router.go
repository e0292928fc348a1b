// Package router builds the Echo instance: global middleware in order,
// then the system and API routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/user-registry/internal/handler"
	"github.com/deppfellow/user-registry/internal/middleware"
	"github.com/deppfellow/user-registry/internal/server"
)

// NewRouter returns the fully wired router.
//
// Middleware order matters: RequestID runs before the tracing and context
// middleware that read the ID, NewRelicMiddleware before EnhanceTracing,
// ContextEnhancer before RequestLogger and the handlers that call
// middleware.GetLogger, and RequestLogger before the rate limiter so
// rejected requests are logged too.
func NewRouter(s *server.Server, h *handler.Handlers) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s)

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true

	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler

	router.Use(
		middlewares.Global.CORS(),
		middlewares.Global.Secure(),
		middleware.RequestID(),
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.RequestLogger(),
		middlewares.RateLimit.Limit(),
		middlewares.Global.Recover(),
	)

	registerSystemRoutes(router, h)
	registerUserRoutes(router, h)

	return router
}
