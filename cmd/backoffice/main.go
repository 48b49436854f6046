package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/app"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/checkout"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/creditnote"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/integration"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/observability"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/cache"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/db"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/returns"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
	"github.com/amitprasad2007/varanasisaree-sub002/jobs"
)

// creditIssuer adapts the store-credit ledger to the refund settlement port.
type creditIssuer struct {
	notes *creditnote.Service
}

func (c creditIssuer) IssueCredit(ctx context.Context, customerID int64, amount shared.Money, reference string, actorID int64) (uuid.UUID, error) {
	note, err := c.notes.Issue(ctx, customerID, amount, reference, shared.Actor{ID: actorID})
	if err != nil {
		return uuid.Nil, err
	}
	return note.ID, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGLockTimeout)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	notifier := integration.NewNotifier(asynqClient, logger)
	metrics := observability.NewMetrics()

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, metrics)

	creditRepo := creditnote.NewRepository(pool)
	creditService := creditnote.NewService(creditRepo, auditLogger, metrics, creditnote.ServiceConfig{
		DefaultExpiryMonths: cfg.CreditExpiryMonths,
		AllowPartialUse:     cfg.CreditPartialUse,
	}, time.Now)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, auditLogger, notifier, time.Now)

	thresholds := refunds.Thresholds{
		AutoApprovalLimit: shared.Money(cfg.RefundAutoApprovalLimit),
		VendorThreshold:   shared.Money(cfg.RefundVendorThreshold),
		AdminThreshold:    shared.Money(cfg.RefundAdminThreshold),
	}
	processor := integration.NewPaymentProcessor(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	refundsRepo := refunds.NewRepository(pool)
	refundsService := refunds.NewService(
		refundsRepo,
		creditIssuer{notes: creditService},
		processor,
		notifier,
		auditLogger,
		metrics,
		thresholds,
		refunds.Escalation{
			VendorTimeout:     cfg.RefundVendorTimeout,
			AdminTimeout:      cfg.RefundAdminTimeout,
			ProcessingTimeout: time.Duration(cfg.RefundProcessingTimeoutDays) * 24 * time.Hour,
		},
		logger,
	)

	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, auditLogger, notifier, returns.ServiceConfig{
		RefundWindowDays: cfg.ReturnWindowDays,
		Thresholds:       thresholds,
	}, logger, time.Now)

	catalog := integration.NewCatalog(pool)
	checkoutRepo := checkout.NewRepository(pool)
	checkoutService := checkout.NewService(checkoutRepo, catalog, idempotencyStore, auditLogger, notifier, checkout.ServiceConfig{
		AllowPartialCreditUse: cfg.CreditPartialUse,
	}, logger, time.Now)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		CreditNoteHandler: creditnote.NewHandler(logger, creditService),
		SalesHandler:      sales.NewHandler(logger, salesService),
		ReturnsHandler:    returns.NewHandler(logger, returnsService),
		RefundsHandler:    refunds.NewHandler(logger, refundsService),
		CheckoutHandler:   checkout.NewHandler(logger, checkoutService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
