// Package main is the entry point for the catheter registry master-data server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"catreg/internal/config"
	"catreg/internal/domain/auth"
	"catreg/internal/domain/masterdata"
	v1 "catreg/internal/infrastructure/http/v1"
	"catreg/internal/infrastructure/storage/postgres"
	"catreg/internal/infrastructure/storage/postgres/lookup_repo"
	"catreg/internal/metadata"
	"catreg/migrations"
	"catreg/pkg/logger"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "catreg",
		Short:         "Catheter registry master-data service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is the wired dependency graph shared by the commands that touch the database.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	pool     *postgres.Pool
	registry *metadata.Registry
	service  *masterdata.Service
	audit    *postgres.AuditService
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return cfg, log, nil
}

// bootstrap connects to the database and builds the master-data service.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	registry, err := setupMetadataRegistry(cfg)
	if err != nil {
		return nil, err
	}
	log.Infow("metadata registry initialized", "entity_types", registry.Len())

	if cfg.MigrationsAuto {
		if err := postgres.MigrateUp(ctx, cfg.DatabaseURL, migrations.FS); err != nil {
			return nil, err
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)
	repo := lookup_repo.NewRepo(txManager)
	svcCfg := masterdata.ServiceConfig{
		Registry:        registry,
		Store:           repo,
		TxManager:       txManager,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}

	a := &app{cfg: cfg, log: log, pool: pool, registry: registry}
	if cfg.AuditEnabled {
		audit, err := postgres.NewAuditService(txManager)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.audit = audit
		svcCfg.Auditor = audit
	}
	a.service = masterdata.NewService(svcCfg)
	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	jwtConfig := auth.DefaultJWTConfig(a.cfg.JWTSecret)
	jwtConfig.Issuer = a.cfg.JWTIssuer
	jwtService := auth.NewJWTService(jwtConfig)

	routerCfg := v1.RouterConfig{
		Logger:        a.log,
		Health:        a.pool,
		JWTValidator:  jwtService,
		Registry:      a.registry,
		Service:       a.service,
		SecureCookies: !a.cfg.IsDev(),
		Version:       version,
		Debug:         a.cfg.IsDev(),
	}
	if a.audit != nil {
		routerCfg.History = a.audit
	}
	router := v1.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infow("server starting", "port", a.cfg.Port, "env", a.cfg.Env, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server...")
	a.pool.LogStats(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.log.Info("server stopped")
	return nil
}
