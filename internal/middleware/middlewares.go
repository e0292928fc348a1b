package middleware

import (
	"github.com/deppfellow/user-registry/internal/server"
)

// Middlewares groups the middleware components so they are built once
// with their shared dependencies and reused during router setup.
type Middlewares struct {
	// Global holds CORS, request logging, recovery, secure headers and the
	// global error handler.
	Global *GlobalMiddlewares

	// ContextEnhancer installs the request-scoped logger.
	ContextEnhancer *ContextEnhancer

	// Tracing wires New Relic transactions. It is a no-op when the agent is
	// disabled.
	Tracing *TracingMiddleware

	// RateLimit records rate limit hits.
	RateLimit *RateLimitMiddleware
}

func NewMiddlewares(s *server.Server) *Middlewares {
	return &Middlewares{
		Global:          NewGlobalMiddlewares(s),
		ContextEnhancer: NewContextEnhancer(s),
		Tracing:         NewTracingMiddleware(s, s.LoggerService.GetApplication()),
		RateLimit:       NewRateLimitMiddleware(s),
	}
}
