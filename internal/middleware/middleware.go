// Package middleware holds the Echo middleware shared by every route:
// request IDs, request-scoped logging, New Relic tracing, CORS, rate
// limiting, panic recovery and the global error handler.
package middleware
