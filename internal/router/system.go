package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/user-registry/internal/handler"
	"github.com/deppfellow/user-registry/static"
)

// registerSystemRoutes registers endpoints outside the user API: health,
// the embedded static files and the docs UI.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers) {
	r.GET("/status", h.Health.CheckHealth)

	r.StaticFS("/static", static.Files)

	r.GET("/docs", h.OpenAPI.ServeOpenAPIUI)
}
