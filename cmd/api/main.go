package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/workflow-builder/engine/internal/api"
	"github.com/workflow-builder/engine/internal/api/handlers"
	"github.com/workflow-builder/engine/internal/generation"
	"github.com/workflow-builder/engine/internal/llm"
	"github.com/workflow-builder/engine/internal/migrations"
	"github.com/workflow-builder/engine/internal/repository"
	"github.com/workflow-builder/engine/internal/services"
	"github.com/workflow-builder/engine/pkg/config"
	"github.com/workflow-builder/engine/pkg/database"
	"github.com/workflow-builder/engine/pkg/logger"
	"github.com/workflow-builder/engine/pkg/telemetry"

	_ "github.com/workflow-builder/engine/docs"
)

// @title           Workflow Builder API
// @version         1.0
// @description     Workflow documents with version history, drafting from descriptions, and account management.

// @BasePath  /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

const devJWTSecret = "change-me-in-production-please"

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting workflow engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Connect to database
	db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{AppEnv: cfg.AppEnv, MaxRetries: 5})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()
	log.Info("database connected", zap.Bool("sqlite", cfg.IsSQLite()))

	// sqlite and development databases are migrated in place; others use cmd/migrate
	if cfg.IsSQLite() || cfg.AppEnv == "development" {
		if err := migrations.Run(db); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		if cfg.AppEnv == "production" {
			log.Fatal("JWT_SECRET must be set in production")
		}
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = devJWTSecret
	}

	healthChecks := map[string]handlers.Check{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}

	// Audit events go through the queue when redis is configured.
	var enqueuer services.Enqueuer
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		client := asynq.NewClientFromRedisClient(rdb)
		defer client.Close()
		enqueuer = client

		healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("audit events are queued", zap.String("redis", cfg.RedisAddr))
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	versionRepo := repository.NewWorkflowVersionRepository(db)

	// Initialize services
	sink := services.NewAuditSink(auditRepo, enqueuer)
	issuer := services.NewTokenManager(jwtSecret, cfg.AccessTokenTTL)
	authSvc := services.NewAuthService(db, userRepo, tokenRepo, issuer, sink, services.AuthConfig{
		RefreshTTL: cfg.RefreshTokenTTL,
		ResetTTL:   cfg.PasswordResetTTL,
	})
	userSvc := services.NewUserService(userRepo, sink)
	workflowSvc := services.NewWorkflowService(db, workflowRepo, versionRepo, sink)

	completer := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.OpenAITimeout,
	})
	if !completer.Configured() {
		log.Warn("OPENAI_API_KEY not set, generation requests will be rejected")
	}
	generationSvc := services.NewGenerationService(generation.NewGenerator(completer), sink)

	if n := services.Seed(ctx, userSvc, cfg); n > 0 {
		log.Info("seeded users", zap.Int("count", n))
	}

	router := api.NewRouter(ctx, api.Dependencies{
		Authenticator:  authSvc,
		AllowedOrigins: cfg.AllowedOrigins(),
		HealthChecks:   healthChecks,
		AuthHandler: handlers.NewAuthHandler(authSvc, handlers.CookieConfig{
			Secure:   cfg.CookieSecure,
			SameSite: handlers.ParseSameSite(cfg.CookieSameSite),
		}),
		UsersHandler:     handlers.NewUsersHandler(userSvc),
		WorkflowsHandler: handlers.NewWorkflowsHandler(workflowSvc, generationSvc),
		AuditHandler:     handlers.NewAuditHandler(services.NewAuditService(auditRepo)),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// generation waits on the completion provider
		WriteTimeout: cfg.OpenAITimeout + 30*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return shutdownTracing(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited gracefully")
}
