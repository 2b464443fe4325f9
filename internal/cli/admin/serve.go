// Package admin holds the kbgated server commands.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api/handlers"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/config"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/database"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/jobs"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/logging"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/server"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gate API server",
		Long:  "Start the kbgated HTTP API that evaluates and stores knowledge entries",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default KB_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.HasSentry() {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: cfg.SentrySampleRate,
			Debug:            cfg.Debug,
			Logger:           logger,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer shutdownTelemetry()
		}
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if cfg.StoreBackend == config.BackendPostgres && !noMigrate {
		if _, err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	rt, err := cli.NewRuntime(ctx, cfg, logger, cli.RuntimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Schemas.Preload(ctx); err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}
	logger.Info("schemas loaded", zap.Int("count", len(rt.Schemas.Loaded())))
	if rt.Qdrant != nil {
		for _, name := range cfg.Collections() {
			created, err := rt.Qdrant.EnsureCollection(ctx, name, uint64(cfg.EmbeddingDimension))
			if err != nil {
				return fmt.Errorf("failed to ensure collection %s: %w", name, err)
			}
			if created {
				logger.Info("collection created", zap.String("collection", name))
			}
		}
	}

	srv := NewHTTPServer(rt)

	if cfg.AuditInterval > 0 && rt.Knowledge != nil {
		worker := jobs.NewWorker(jobs.NewAuditJob(rt.Knowledge, cfg.ScanLimit, logger), cfg.AuditInterval, logger)
		go worker.Start(ctx)
		defer worker.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("backend", cfg.StoreBackend),
			zap.Bool("auth", cfg.APIToken != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// NewHTTPServer mounts the gate API for rt on the configured port.
func NewHTTPServer(rt *cli.Runtime) *http.Server {
	routerCfg := server.RouterConfig{
		APIToken:      rt.Config.APIToken,
		Logger:        rt.Logger,
		GateHandler:   handlers.NewGateHandler(rt.Gate, rt.Gate.Validator()),
		SchemaHandler: handlers.NewSchemaHandler(rt.Schemas),
	}
	if rt.Knowledge != nil {
		routerCfg.EntryHandler = handlers.NewEntryHandler(rt.Knowledge)
	}

	return &http.Server{
		Addr:              ":" + rt.Config.Port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
