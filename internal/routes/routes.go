package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/settlement/internal/audit"
	"github.com/congo-pay/settlement/internal/auth"
	"github.com/congo-pay/settlement/internal/config"
	"github.com/congo-pay/settlement/internal/events"
	"github.com/congo-pay/settlement/internal/funding"
	"github.com/congo-pay/settlement/internal/identity"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/middleware"
	"github.com/congo-pay/settlement/internal/notification"
	"github.com/congo-pay/settlement/internal/payments"
	"github.com/congo-pay/settlement/internal/request"
	"github.com/congo-pay/settlement/internal/wallet"
)

// Only reachable in dev; config.Validate requires real secrets elsewhere.
const (
	devAccessSecret  = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg        config.Config
	DB         *pgxpool.Pool
	Cache      *redis.Client
	Logger     *slog.Logger
	Publisher  events.Publisher
	Dispatcher *notification.Dispatcher
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.AccessLog(d.Logger))

	// Balance changes go to in-process subscribers and any external publisher.
	updates := events.NewBroadcaster(32, d.Logger)
	publisher := events.Multi{updates}
	if d.Publisher != nil {
		publisher = append(publisher, d.Publisher)
	}
	ledgerOpts := []ledger.Option{
		ledger.WithLockTimeout(d.Cfg.LedgerLockTimeout),
		ledger.WithPublisher(publisher),
		ledger.WithLogger(d.Logger),
	}

	var (
		ledgerBackend ledger.Store
		walletRepo    wallet.Repository
		identityRepo  identity.Repository
		fundingRepo   funding.Repository
		auditLog      audit.Log
		locker        funding.Locker
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB, ledgerOpts...)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		fundingRepo = funding.NewPostgresRepository(d.DB)
		auditLog = audit.NewPostgresLog(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory(ledgerOpts...)
		walletRepo = wallet.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
		fundingRepo = funding.NewMemoryRepository()
		auditLog = audit.NewMemoryLog()
	}
	if d.Cache != nil {
		locker = funding.NewRedisLocker(d.Cache, 30*time.Second, d.Cfg.FundingLockTimeout)
	} else {
		locker = funding.NewLocalLocker(d.Cfg.FundingLockTimeout)
	}

	ctx := context.Background()
	if d.Cfg.FeeSinkAccount != "" {
		if err := ledgerBackend.EnsureAccount(ctx, d.Cfg.FeeSinkAccount, ""); err != nil {
			return fmt.Errorf("provision fee sink: %w", err)
		}
	}

	RegisterHealthRoutes(app, d, ledgerBackend)

	dispatcher := d.Dispatcher
	if dispatcher == nil {
		dispatcher = notification.NewDispatcher(notification.NewLoggerNotifier(d.Logger), d.Cfg.NotificationTimeout, d.Logger)
	}

	walletSvc := wallet.NewService(walletRepo, ledgerBackend)
	identitySvc := identity.NewService(identityRepo)
	accessSecret, refreshSecret := d.Cfg.JWTSecret, d.Cfg.RefreshSecret
	if accessSecret == "" {
		accessSecret = devAccessSecret
	}
	if refreshSecret == "" {
		refreshSecret = devRefreshSecret
	}
	authSvc := auth.NewService(auth.Settings{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     d.Cfg.AccessTokenTTL,
		RefreshTTL:    d.Cfg.RefreshTokenTTL,
	}, identityRepo)
	paymentSvc := payments.NewService(ledgerBackend, walletSvc, identitySvc, auditLog, dispatcher, payments.Config{
		Fees:           d.Cfg.Fees.Transfer,
		FeeSinkAccount: d.Cfg.FeeSinkAccount,
	}, d.Logger)
	fundingSvc, err := funding.NewService(ctx, funding.Deps{
		Repo:     fundingRepo,
		Ledger:   ledgerBackend,
		Wallets:  walletSvc,
		Audit:    auditLog,
		Notifier: dispatcher,
		Locker:   locker,
		Config:   funding.Config{Fees: d.Cfg.Fees, FeeSinkAccount: d.Cfg.FeeSinkAccount},
		Logger:   d.Logger,
	})
	if err != nil {
		return err
	}

	authHandler := auth.NewHandler(identitySvc, authSvc, walletSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	walletHandler := wallet.NewHandler(walletSvc, updates)
	auditHandler := audit.NewHandler(auditLog)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(authSvc)
	idempotency := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	// Public routes
	RegisterIdentityRoutes(api, identitySvc, walletSvc, d.Logger)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit), jwtmw)

	// Protected routes
	protected := api.Group("", jwtmw)
	protected.Get("/me", func(c *fiber.Ctx) error {
		p, err := request.Principal(c)
		if err != nil {
			return err
		}
		user, err := identitySvc.Get(c.UserContext(), p.UserID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"user_id":       user.ID,
			"phone":         user.Phone,
			"tier":          user.Tier,
			"role":          user.Role,
			"device_id":     user.DeviceID,
			"token_version": user.TokenVersion,
			"created_at":    user.CreatedAt,
			"last_login":    user.LastLogin,
		})
	})
	RegisterWalletRoutes(protected, walletHandler)
	RegisterPaymentRoutes(protected, paymentHandler, idempotency)
	RegisterFundingRoutes(protected, fundingHandler, idempotency)
	RegisterAdminRoutes(protected, fundingHandler, paymentHandler, auditHandler, idempotency)

	return nil
}
