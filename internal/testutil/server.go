// Package testutil builds servers backed by an in-memory pgx mock for
// tests that need the full request path without PostgreSQL.
package testutil

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/user-registry/internal/config"
	"github.com/deppfellow/user-registry/internal/database"
	"github.com/deppfellow/user-registry/internal/logger"
	"github.com/deppfellow/user-registry/internal/server"
)

// NewConfig returns a valid configuration for tests. The rate limit is
// high enough never to trigger unless a test lowers it.
func NewConfig() *config.Config {
	return &config.Config{
		Primary: config.Primary{Env: "development"},
		Server: config.ServerConfig{
			Port:               "0",
			ReadTimeout:        5,
			WriteTimeout:       5,
			IdleTimeout:        5,
			CORSAllowedOrigins: []string{"*"},
			RateLimit:          1000,
		},
		Database: config.DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			Name:           "postgres",
			SSLMode:        "disable",
			ConnectTimeout: 1,
			QueryTimeout:   5,
		},
		Observability: config.DefaultObservabilityConfig(),
	}
}

// NewMockDatabase returns a Database over a pgxmock connection. SQL is
// matched by exact string.
func NewMockDatabase(t *testing.T) (*database.Database, pgxmock.PgxConnIface) {
	t.Helper()

	mock, err := pgxmock.NewConn(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)

	log := zerolog.Nop()

	return database.NewWithConn(mock, &log), mock
}

// NewServer returns a Server whose database is a pgxmock connection.
func NewServer(t *testing.T) (*server.Server, pgxmock.PgxConnIface) {
	t.Helper()

	db, mock := NewMockDatabase(t)
	log := zerolog.Nop()

	return server.NewWithDatabase(NewConfig(), &log, &logger.LoggerService{}, db), mock
}
