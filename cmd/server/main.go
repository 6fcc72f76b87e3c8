/*
main.go - Application entry point

PURPOSE:
  Starts the crew roster HTTP server. Loads configuration, builds the
  object graph, starts the alert scheduler and serves until signalled.

STARTUP SEQUENCE:
  1. Load configuration (file, then CREW_ROSTER_* environment)
  2. Initialize the zap logger
  3. Build the application (store, service, alerts, limiter)
  4. Seed the demo scenario when requested
  5. Start the alert scheduler and the HTTP server

FLAGS:
  --config, -c   YAML config path (default: crew-roster.yaml, optional)
  --port, -p     Overrides server.port
  --demo         Seed the demo scenario on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout)
  3. Stop the scheduler, close store and redis connections

EXAMPLES:
  # Development: in-memory store with demo data
  ./server --demo

  # SQLite file database
  CREW_ROSTER_DB_DRIVER=sqlite CREW_ROSTER_DB_DSN=./data/roster.db ./server

SEE ALSO:
  - app/app.go: Object graph
  - api/server.go: Router configuration
  - config/config.go: Configuration sections
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/api"
	"github.com/warp/crew-roster/app"
	"github.com/warp/crew-roster/config"
	"github.com/warp/crew-roster/logging"
)

var (
	configPath string
	port       int
	demo       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Crew roster leave and flight request server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if demo {
				cfg.Server.Demo = true
			}
			return serve(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "crew-roster.yaml", "Path to the YAML config file")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP server port")
	rootCmd.Flags().BoolVar(&demo, "demo", false, "Seed the demo scenario on startup")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	handler := application.Handler()
	if cfg.Server.Demo {
		if _, err := handler.SeedScenario(ctx, api.DefaultScenario); err != nil {
			return fmt.Errorf("failed to seed demo scenario: %w", err)
		}
	}

	application.Scheduler.Start()

	server := application.HTTPServer(application.Router(handler))
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("api", fmt.Sprintf("http://localhost:%d/api", cfg.Server.Port)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
