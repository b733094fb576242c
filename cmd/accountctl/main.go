// Command accountctl applies operator status changes to portal accounts.
//
//	accountctl -identifier student@example.com -status SUSPENDED
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/config"
	"github.com/BradenHooton/gradegate/internal/database"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/internal/repositories"
	"github.com/BradenHooton/gradegate/internal/services"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

func main() {
	identifier := flag.String("identifier", "", "account identifier (email)")
	status := flag.String("status", "", "new status: ACTIVE, SUSPENDED, DELETED, PASSWORD_RESET_REQUIRED or UNVERIFIED")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if *identifier == "" || *status == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	account, err := run(ctx, cfg, logger, *identifier, models.AccountStatus(strings.ToUpper(*status)))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			logger.Error("account not found")
		case errors.Is(err, models.ErrInvalidTransition):
			logger.Error("status cannot be set directly", slog.String("status", *status))
		default:
			logger.Error("status change failed", slog.Any("error", err))
		}
		os.Exit(1)
	}

	fmt.Printf("%s %s\n", account.ID, account.Status)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, identifier string, status models.AccountStatus) (*models.Account, error) {
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	redisClient, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	defer redisClient.Close()

	clock := auth.SystemClock{}
	accountRepo := repositories.NewAccountRepository(db)
	tokenManager := auth.NewTokenManager(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.VerificationTTL, clock)
	sessionService := services.NewSessionService(tokenManager, repositories.NewSessionRegistry(redisClient), clock, logger)
	auditService := services.NewAuditService(repositories.NewLoginAttemptRepository(db), pkglogger.NewAuditLogger(logger, cfg.Server.Env))

	accountService := services.NewAccountService(
		accountRepo,
		services.NewAccountStateService(accountRepo, cfg.Gate.LockPolicy(), clock, logger),
		tokenManager,
		sessionService,
		services.NewLogNotifier(logger, cfg.Server.Env),
		auditService,
		logger,
	)

	return accountService.SetStatus(ctx, identifier, status)
}
