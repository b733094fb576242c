package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/background"
	"github.com/BradenHooton/gradegate/internal/config"
	"github.com/BradenHooton/gradegate/internal/database"
	"github.com/BradenHooton/gradegate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gradegate/internal/middleware"
	"github.com/BradenHooton/gradegate/internal/repositories"
	"github.com/BradenHooton/gradegate/internal/routes"
	"github.com/BradenHooton/gradegate/internal/services"
	pkghttp "github.com/BradenHooton/gradegate/pkg/http"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("counter_store", cfg.Gate.CounterStore),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.Pool, logger); err != nil {
			return err
		}
	}

	redisClient, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	clock := auth.SystemClock{}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	sessionRegistry := repositories.NewSessionRegistry(redisClient)

	var counterStore services.RateLimitStore
	var counterPurger background.CounterPurger
	switch cfg.Gate.CounterStore {
	case config.CounterStoreRedis:
		counterStore = repositories.NewRedisRateLimitStore(redisClient)
	default:
		rateLimitRepo := repositories.NewRateLimitRepository(db)
		counterStore = rateLimitRepo
		counterPurger = rateLimitRepo
	}

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger, cfg.Server.Env)
	auditService := services.NewAuditService(loginAttemptRepo, auditLogger)
	tokenManager := auth.NewTokenManager(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.VerificationTTL, clock)
	sessionService := services.NewSessionService(tokenManager, sessionRegistry, clock, logger)
	accountState := services.NewAccountStateService(accountRepo, cfg.Gate.LockPolicy(), clock, logger)
	accountService := services.NewAccountService(
		accountRepo,
		accountState,
		tokenManager,
		sessionService,
		services.NewLogNotifier(logger, cfg.Server.Env),
		auditService,
		logger,
	)

	gate := services.NewLoginGate(services.LoginGateDeps{
		RateLimiter: services.NewRateLimitService(counterStore, clock, logger),
		Stuffing:    services.NewStuffingDetector(loginAttemptRepo, clock, logger),
		Accounts:    accountState,
		Verifier:    services.NewBcryptVerifier(accountRepo),
		Sessions:    sessionService,
		Recorder:    auditService,
		Equalizer:   auth.NewTimingEqualizer(auth.TimingConfig{Floor: cfg.Gate.TimingFloor, Jitter: cfg.Gate.TimingJitter}, clock),
		Clock:       clock,
	}, services.LoginGateConfig{
		IPPolicy:          cfg.Gate.IPPolicy(),
		IdentifierPolicy:  cfg.Gate.IdentifierPolicy(),
		StuffingThreshold: cfg.Gate.StuffingThreshold,
		StuffingWindow:    cfg.Gate.StuffingWindow,
		VerifierTimeout:   cfg.Gate.VerifierTimeout,
		AuditTimeout:      cfg.Gate.AuditTimeout,
	}, logger)

	// Initialize handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	authHandler := handlers.NewAuthHandler(gate, accountService, sessionService, ipConfig, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.HealthCheck,
		"redis":    redisHealthCheck(redisClient),
	})

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, cfg.Server.Env))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	rateLimitConfig := middlewareCustom.DefaultAuthRateLimit(ipConfig)
	rateLimitConfig.RequestsPerMinute = cfg.Server.HTTPRateLimit
	routes.RegisterRoutes(router, authHandler, healthHandler, sessionService, rateLimitConfig, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(counterPurger, loginAttemptRepo, background.CleanupConfig{
		Interval:         cfg.Cleanup.Interval,
		CounterRetention: cfg.Gate.CounterRetention(),
		AuditRetention:   cfg.Cleanup.AuditRetention,
	}, clock, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cleanupManager.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		cleanupManager.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func redisHealthCheck(client *redis.Client) handlers.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
