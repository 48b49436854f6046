package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/app"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/creditnote"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/integration"
	jobmetrics "github.com/amitprasad2007/varanasisaree-sub002/internal/jobs"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/cache"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/db"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
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
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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
	notifier := integration.NewNotifier(asynqClient, logger)

	creditRepo := creditnote.NewRepository(pool)
	creditService := creditnote.NewService(creditRepo, auditLogger, nil, creditnote.ServiceConfig{
		DefaultExpiryMonths: cfg.CreditExpiryMonths,
		AllowPartialUse:     cfg.CreditPartialUse,
	}, time.Now)

	processor := integration.NewPaymentProcessor(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	refundsRepo := refunds.NewRepository(pool)
	refundsService := refunds.NewService(
		refundsRepo,
		creditIssuer{notes: creditService},
		processor,
		notifier,
		auditLogger,
		nil,
		refunds.Thresholds{
			AutoApprovalLimit: shared.Money(cfg.RefundAutoApprovalLimit),
			VendorThreshold:   shared.Money(cfg.RefundVendorThreshold),
			AdminThreshold:    shared.Money(cfg.RefundAdminThreshold),
		},
		refunds.Escalation{
			VendorTimeout:     cfg.RefundVendorTimeout,
			AdminTimeout:      cfg.RefundAdminTimeout,
			ProcessingTimeout: time.Duration(cfg.RefundProcessingTimeoutDays) * 24 * time.Hour,
		},
		logger,
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Metrics:   jobmetrics.NewMetrics(nil),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeNotify, Handler: jobs.NewNotifyHandler(logger)},
			{Type: jobs.TaskTypeRefundEscalation, Handler: jobs.NewRefundEscalationHandler(refundsService, logger)},
			{Type: jobs.TaskTypeCreditNoteExpiry, Handler: jobs.NewCreditNoteExpiryHandler(creditService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewRefundEscalationTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewCreditNoteExpiryTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
