package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deppfellow/user-registry/internal/config"
	"github.com/deppfellow/user-registry/internal/database"
	"github.com/deppfellow/user-registry/internal/handler"
	"github.com/deppfellow/user-registry/internal/logger"
	"github.com/deppfellow/user-registry/internal/repository"
	"github.com/deppfellow/user-registry/internal/router"
	"github.com/deppfellow/user-registry/internal/server"
	"github.com/deppfellow/user-registry/internal/service"
)

// DefaultContextTimeout bounds graceful shutdown.
const DefaultContextTimeout = 30

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "user-registry",
		Short:         "HTTP service for creating and reading user records",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd(), newMigrateCmd())

	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var target int32

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, loggerService, err := bootstrap()
			if err != nil {
				return err
			}
			defer loggerService.Shutdown()

			if err := database.Migrate(commandContext(cmd), &log, cfg, target); err != nil {
				log.Error().Err(err).Msg("migration failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().Int32Var(&target, "to", 0, "target schema version (0 = latest)")

	return cmd
}

// bootstrap loads the configuration and builds the logger. Config errors
// are printed with a plain logger since the real one depends on them.
func bootstrap() (*config.Config, zerolog.Logger, *logger.LoggerService, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := logger.NewLogger(nil)
		bootLog.Error().Err(err).Msg("failed to load config")
		return nil, zerolog.Logger{}, nil, err
	}

	loggerService, err := logger.NewLoggerService(cfg.Observability)
	if err != nil {
		bootLog := logger.NewLogger(cfg.Observability)
		bootLog.Error().Err(err).Msg("failed to initialize new relic")
		return nil, zerolog.Logger{}, nil, err
	}

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	return cfg, log, loggerService, nil
}

func serve(parent context.Context) error {
	cfg, log, loggerService, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, &log, loggerService)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize server")
		loggerService.Shutdown()
		return err
	}

	repos := repository.NewRepositories(srv)

	if err := repos.User.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("failed to ensure database schema")
		_ = srv.Shutdown(context.Background())
		return err
	}

	services, err := service.NewServices(srv, repos)
	if err != nil {
		log.Error().Err(err).Msg("could not create services")
		_ = srv.Shutdown(context.Background())
		return err
	}

	handlers := handler.NewHandlers(srv, services)
	r := router.NewRouter(srv, handlers)

	srv.SetupHTTPServer(r)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server stopped unexpectedly")
			_ = srv.Shutdown(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultContextTimeout*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	log.Info().Msg("server exited properly")
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	return contextOrBackground(cmd.Context())
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
