package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kulupnet/kulupnet/internal/admin"
	"github.com/kulupnet/kulupnet/internal/app"
	"github.com/kulupnet/kulupnet/internal/assignments"
	"github.com/kulupnet/kulupnet/internal/auth"
	"github.com/kulupnet/kulupnet/internal/identity"
	"github.com/kulupnet/kulupnet/internal/observability"
	"github.com/kulupnet/kulupnet/internal/platform/cache"
	"github.com/kulupnet/kulupnet/internal/platform/db"
	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
	"github.com/kulupnet/kulupnet/internal/view"
	"github.com/kulupnet/kulupnet/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "kulupnet_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	pgProvider := identity.NewPGProvider(dbpool, sessionManager, logger)
	var provider identity.Provider = pgProvider
	var oidcLogin *identity.OIDCLogin
	if cfg.OIDCEnabled() {
		oidcProvider, err := identity.NewOIDCProvider(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			logger.Error("configure oidc issuer", slog.Any("error", err))
			os.Exit(1)
		}
		// Cookie sessions stay authoritative for the browser; bearer
		// tokens only cover API callers without a session.
		provider = identity.NewChain(pgProvider, oidcProvider)
		if cfg.OIDCRedirectURL != "" {
			oidcLogin, err = identity.NewOIDCLogin(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
			if err != nil {
				logger.Warn("oidc login flow unavailable", slog.Any("error", err))
			}
		}
	}

	rbacStore := rbac.NewPGStore(dbpool)
	mappingCache := rbac.NewMappingCache(rbacStore, logger, metrics)
	resolver := rbac.NewResolver(provider, rbacStore, mappingCache, logger)
	guard := &rbac.Guard{
		Resolver:       resolver,
		Sessions:       sessionManager,
		Views:          templates,
		Logger:         logger,
		Metrics:        metrics,
		LoginPath:      cfg.LoginPath,
		RedirectLimit:  cfg.GuardRedirectLimit,
		RedirectWindow: cfg.GuardRedirectWindow,
		ResolveTimeout: cfg.GuardResolveTimeout,
	}
	editor := rbac.NewEditor(rbacStore, mappingCache, auditLogger, logger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, provider, templates, sessionManager, csrfManager)
	if oidcLogin != nil {
		authHandler = authHandler.WithOIDCLogin(oidcLogin)
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	assignmentsRepo := assignments.NewRepository(dbpool)
	assignmentsService := assignments.NewService(assignmentsRepo, resolver, jobClient, auditLogger, logger)

	memberHandler := assignments.NewMemberHandler(logger, assignmentsService)
	matrixHandler := admin.NewMatrixHandler(logger, editor, mappingCache, templates, csrfManager, guard)
	assignmentsHandler := admin.NewAssignmentsHandler(logger, assignmentsService, templates, csrfManager, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Guard:              guard,
		AuthHandler:        authHandler,
		MemberHandler:      memberHandler,
		MatrixHandler:      matrixHandler,
		AssignmentsHandler: assignmentsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	// Warm the permission mapping so the first guarded request does not
	// pay the load, and surface fallback mode early in the logs.
	warmCtx, cancelWarm := context.WithTimeout(ctx, 5*time.Second)
	mappingCache.Mapping(warmCtx)
	cancelWarm()
	if mappingCache.Degraded() {
		logger.Warn("permission mapping running on fallback defaults")
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
