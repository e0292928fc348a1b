// Package database owns the service's single PostgreSQL connection.
//
// pgx connections are not safe for concurrent use, so every operation goes
// through Database.Acquire, which hands the connection to one caller at a
// time. A caller keeps it until its callback returns, including while it
// iterates a result set.
//
// pgx closes a connection whose query context ends mid-flight. The caller's
// context therefore only bounds the wait for the connection; the work itself
// runs under the configured query timeout. A connection found closed anyway
// is redialed before it is handed out.
//
// It also wires query tracing into the driver: New Relic (nrpgx5) when the
// agent is enabled, SQL logging (pgx tracelog) in the local environment and
// a slow query warning everywhere.
package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/deppfellow/user-registry/internal/config"
	loggerConfig "github.com/deppfellow/user-registry/internal/logger"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("database connection is closed")

// Conn is the subset of *pgx.Conn the service uses.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefaultQueryTimeout bounds a unit of work when no configuration is given.
const DefaultQueryTimeout = 10 * time.Second

// Database wraps the shared connection and a logger.
type Database struct {
	conn Conn
	sem  *semaphore.Weighted
	log  *zerolog.Logger

	queryTimeout time.Duration

	// dial opens a replacement connection. nil disables reconnecting.
	dial           func(ctx context.Context) (Conn, error)
	connectTimeout time.Duration

	closed bool
}

// closedReporter is implemented by *pgx.Conn.
type closedReporter interface {
	IsClosed() bool
}

// multiTracer chains several pgx query tracers, since ConnConfig only has
// one Tracer slot.
type multiTracer struct {
	tracers []pgx.QueryTracer
}

func (mt *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, tracer := range mt.tracers {
		ctx = tracer.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (mt *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, tracer := range mt.tracers {
		tracer.TraceQueryEnd(ctx, conn, data)
	}
}

// DSN builds the postgres URL for cfg. User, password and database name are
// escaped so values like "pa:ss@word" or "my secret" keep the URL intact.
func DSN(cfg *config.DatabaseConfig) string {
	query := url.Values{}
	query.Set("sslmode", cfg.SSLMode)
	query.Set("connect_timeout", strconv.Itoa(cfg.ConnectTimeout))

	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}

	return dsn.String()
}

// New opens the connection, attaches tracers and pings the server. It fails
// when the database is unreachable; the service does not start without it.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService) (*Database, error) {
	connConfig, err := pgx.ParseConfig(DSN(&cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx connection config: %w", err)
	}

	var tracers []pgx.QueryTracer

	if loggerService.GetApplication() != nil {
		tracers = append(tracers, nrpgx5.NewTracer())
	}

	// Statement logging is noisy, so only in local.
	if cfg.Primary.Env == "local" {
		globalLevel := logger.GetLevel()
		tracers = append(tracers, &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(loggerConfig.NewPgxLogger(globalLevel)),
			LogLevel: tracelog.LogLevel(loggerConfig.GetPgxTraceLogLevel(globalLevel)),
		})
	}

	if cfg.Observability != nil && cfg.Observability.Logging.SlowQueryThreshold > 0 {
		tracers = append(tracers, newSlowQueryTracer(cfg.Observability.Logging.SlowQueryThreshold, logger))
	}

	switch len(tracers) {
	case 0:
	case 1:
		connConfig.Tracer = tracers[0]
	default:
		connConfig.Tracer = &multiTracer{tracers: tracers}
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	conn, err := pgx.ConnectConfig(connectCtx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := NewWithConn(conn, logger)
	database.queryTimeout = time.Duration(cfg.Database.QueryTimeout) * time.Second
	database.connectTimeout = time.Duration(cfg.Database.ConnectTimeout) * time.Second
	database.dial = func(ctx context.Context) (Conn, error) {
		conn, err := pgx.ConnectConfig(ctx, connConfig)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	if err = database.Ping(connectCtx); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Name).
		Msg("connected to the database")

	return database, nil
}

// NewWithConn wraps an already open connection. It uses DefaultQueryTimeout
// and never reconnects.
func NewWithConn(conn Conn, logger *zerolog.Logger) *Database {
	return &Database{
		conn:           conn,
		sem:            semaphore.NewWeighted(1),
		log:            logger,
		queryTimeout:   DefaultQueryTimeout,
		connectTimeout: DefaultQueryTimeout,
	}
}

// Acquire runs fn with exclusive use of the connection. It waits for the
// current holder to finish, or returns ctx's error if ctx ends first.
//
// fn receives a context that keeps ctx's values but not its cancellation,
// bounded by the query timeout instead.
func (db *Database) Acquire(ctx context.Context, fn func(ctx context.Context, conn Conn) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for database connection: %w", err)
	}
	defer db.sem.Release(1)

	if db.closed {
		return ErrClosed
	}

	if err := db.reconnectIfClosed(ctx); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), db.queryTimeout)
	defer cancel()

	return fn(opCtx, db.conn)
}

// reconnectIfClosed replaces a connection the driver has closed. The caller
// must hold the semaphore.
func (db *Database) reconnectIfClosed(ctx context.Context) error {
	reporter, ok := db.conn.(closedReporter)
	if !ok || !reporter.IsClosed() || db.dial == nil {
		return nil
	}

	log := db.logger(ctx)
	log.Warn().Msg("database connection is closed, reconnecting")

	dialCtx, cancel := context.WithTimeout(ctx, db.connectTimeout)
	defer cancel()

	conn, err := db.dial(dialCtx)
	if err != nil {
		return fmt.Errorf("reconnecting to database: %w", err)
	}

	db.conn = conn
	log.Info().Msg("reconnected to the database")

	return nil
}

// logger prefers the request-scoped logger carried by ctx.
func (db *Database) logger(ctx context.Context) *zerolog.Logger {
	if log := zerolog.Ctx(ctx); log.GetLevel() != zerolog.Disabled {
		return log
	}
	return db.log
}

// Ping checks that the server still answers.
func (db *Database) Ping(ctx context.Context) error {
	return db.Acquire(ctx, func(ctx context.Context, conn Conn) error {
		return conn.Ping(ctx)
	})
}

// Close waits for the in-flight operation, if any, then closes the
// connection. Later calls to Acquire return ErrClosed.
func (db *Database) Close(ctx context.Context) error {
	db.log.Info().Msg("closing database connection")

	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for database connection: %w", err)
	}
	defer db.sem.Release(1)

	if db.closed {
		return nil
	}
	db.closed = true

	return db.conn.Close(ctx)
}
