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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/language"

	"github.com/gestionrh/gestionrh-console/internal/apierr"
	"github.com/gestionrh/gestionrh-console/internal/app"
	"github.com/gestionrh/gestionrh-console/internal/auth"
	"github.com/gestionrh/gestionrh-console/internal/console"
	"github.com/gestionrh/gestionrh-console/internal/dashboard"
	"github.com/gestionrh/gestionrh-console/internal/departments"
	"github.com/gestionrh/gestionrh-console/internal/employees"
	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/leaves"
	"github.com/gestionrh/gestionrh-console/internal/live"
	"github.com/gestionrh/gestionrh-console/internal/notifications"
	"github.com/gestionrh/gestionrh-console/internal/observability"
	"github.com/gestionrh/gestionrh-console/internal/platform/cache"
	"github.com/gestionrh/gestionrh-console/internal/platform/db"
	"github.com/gestionrh/gestionrh-console/internal/positions"
	"github.com/gestionrh/gestionrh-console/internal/querycache"
	"github.com/gestionrh/gestionrh-console/internal/rbac"
	"github.com/gestionrh/gestionrh-console/internal/shared"
	"github.com/gestionrh/gestionrh-console/internal/view"
	"github.com/gestionrh/gestionrh-console/jobs"
)

const serviceName = "gestionrh-console"

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

	logger := app.NewLogger(cfg, serviceName)

	shutdownTracing := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Environment: cfg.AppEnv,
	}, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisLocation := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisLocation)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gestionrh_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()
	cacheMetrics, err := querycache.NewMetrics(metrics.Registerer())
	if err != nil {
		logger.Error("register cache metrics", slog.Any("error", err))
		os.Exit(1)
	}
	queryCache := querycache.New(redisClient, querycache.Options{TTL: cfg.QueryCacheTTL, Metrics: cacheMetrics, Logger: logger})
	sessionManager.OnTeardown(queryCache.ForgetUser)
	if err := queryCache.Listen(ctx); err != nil {
		logger.Warn("query cache listener", slog.Any("error", err))
	}

	api := hrapi.NewClient(hrapi.Config{BaseURL: cfg.HRAPIURL, Timeout: cfg.HRAPITimeout}, logger)

	classifier, err := apierr.NewClassifier(language.French)
	if err != nil {
		logger.Error("init error catalog", slog.Any("error", err))
		os.Exit(1)
	}
	errorHandler := apierr.NewHandler(classifier, view.FlashNotifier{}, logger).WithObserver(metrics)

	engine, err := view.NewEngine()
	if err != nil {
		logger.Error("init templates", slog.Any("error", err))
		os.Exit(1)
	}
	responder := view.NewResponder(engine, csrfManager, errorHandler, logger)
	guard := rbac.Middleware{Logger: logger, Denied: responder.Forbidden}

	idempotency := shared.NewIdempotencyStore(pool)
	deps := console.Deps{
		Logger:       logger,
		API:          api,
		Cache:        queryCache,
		Responder:    responder,
		RBAC:         guard,
		Journal:      shared.NewAuditLogger(pool),
		LiveInterval: cfg.LiveBaseInterval,
	}

	authService := auth.NewService(api, auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, responder, guard)

	liveHandler := live.NewHandler(live.Options{
		Sessions:     sessionManager,
		Invalidator:  queryCache,
		BaseInterval: cfg.LiveBaseInterval,
		Logger:       logger.With(slog.String("component", "live")),
		GlobalKeys:   []string{console.KeyDepartments, console.KeyJobs, console.KeyLeaveTypes},
		Connections:  metrics.LiveConnections(),
	})

	redisOpts := redisLocation.Asynq()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, responder, guard.RequireRoles(rbac.Admins...), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		Responder:            responder,
		AuthHandler:          authHandler,
		DashboardHandler:     dashboard.NewHandler(deps),
		EmployeesHandler:     employees.NewHandler(deps),
		LeavesHandler:        leaves.NewHandler(deps, idempotency),
		DepartmentsHandler:   departments.NewHandler(deps),
		PositionsHandler:     positions.NewHandler(deps),
		NotificationsHandler: notifications.NewHandler(deps),
		LiveHandler:          liveHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr), slog.String("api", api.BaseURL()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	queryCache.Wait()
}
