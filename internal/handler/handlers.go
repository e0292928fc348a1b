// Package handler is the HTTP layer: it binds and validates requests,
// calls the services and writes their results.
package handler

import (
	"github.com/deppfellow/user-registry/internal/server"
	"github.com/deppfellow/user-registry/internal/service"
)

// Handlers groups every HTTP handler so the router receives one value.
type Handlers struct {
	User    *UserHandler
	Health  *HealthHandler
	OpenAPI *OpenAPIHandler
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		User:    NewUserHandler(s, services.User),
		Health:  NewHealthHandler(s),
		OpenAPI: NewOpenAPIHandler(s),
	}
}
