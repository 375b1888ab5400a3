package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-queries/pkg/auth"
	"github.com/ekaya-inc/ekaya-queries/pkg/config"
	"github.com/ekaya-inc/ekaya-queries/pkg/database"
	"github.com/ekaya-inc/ekaya-queries/pkg/handlers"
	"github.com/ekaya-inc/ekaya-queries/pkg/logging"
	"github.com/ekaya-inc/ekaya-queries/pkg/middleware"
	"github.com/ekaya-inc/ekaya-queries/pkg/policy"
	"github.com/ekaya-inc/ekaya-queries/pkg/repositories"
	"github.com/ekaya-inc/ekaya-queries/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", logging.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("query_versions", cfg.Governance.VersionsEnabled),
		zap.String("policy_file", cfg.Governance.PolicyFile),
	)

	if err := database.RunMigrations(cfg.Database.ConnectionString(), cfg.MigrationsPath, logger); err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	provider, err := loadPolicy(cfg.Governance.PolicyFile)
	if err != nil {
		return err
	}

	queryRepo := repositories.NewQueryRepository()
	if err := checkSchema(ctx, db, queryRepo, logger); err != nil {
		return err
	}

	queryService := services.NewQueryService(
		queryRepo,
		services.NewVersionRecorder(cfg.Governance.VersionsEnabled, repositories.NewQueryVersionRepository(), logger),
		policy.NewEvaluator(provider),
		database.ScopeTransactor{},
		logger,
	)

	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewQueriesHandler(queryService, logger).RegisterRoutes(
		mux,
		auth.NewMiddleware(jwksClient, logger),
		middleware.WithTenantContext(database.NewTenantScopeProvider(db), logger),
	)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-queries", zap.String("addr", server.Addr), zap.Bool("tls", cfg.TLSEnabled()))
		if cfg.TLSEnabled() {
			errCh <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadPolicy(path string) (policy.Provider, error) {
	if path == "" {
		return policy.Permissive{}, nil
	}
	p, err := policy.LoadRolePolicy(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load query policy: %w", err)
	}
	return p, nil
}

// checkSchema resolves the optional status column once at startup so the
// first request does not pay for it, and logs how the active filter behaves.
func checkSchema(ctx context.Context, db *database.DB, repo repositories.QueryRepository, logger *zap.Logger) error {
	scope, err := db.WithoutTenant(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer scope.Close()

	hasStatus, err := repo.HasStatusColumn(database.SetTenantScope(ctx, scope))
	if err != nil {
		return err
	}
	if !hasStatus {
		logger.Warn("engine_queries has no status column; active filter matches every query")
	}
	return nil
}
