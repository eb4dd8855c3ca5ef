package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sokonilabs/sokoni-backend/internal/consumers/paymentevents"
	"github.com/sokonilabs/sokoni-backend/internal/cron"
	"github.com/sokonilabs/sokoni-backend/internal/escrow"
	"github.com/sokonilabs/sokoni-backend/internal/notify"
	"github.com/sokonilabs/sokoni-backend/internal/orders"
	"github.com/sokonilabs/sokoni-backend/internal/payments"
	"github.com/sokonilabs/sokoni-backend/internal/wallets"
	"github.com/sokonilabs/sokoni-backend/internal/withdrawals"
	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/db"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/metrics"
	"github.com/sokonilabs/sokoni-backend/pkg/migrate"
	"github.com/sokonilabs/sokoni-backend/pkg/mobilepay"
	"github.com/sokonilabs/sokoni-backend/pkg/redis"
)

const serviceName = "settlement-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	// Repositories
	orderRepo := orders.NewRepository(dbClient.DB())
	walletRepo := wallets.NewRepository(dbClient.DB())
	escrowRepo := escrow.NewRepository(dbClient.DB())
	paymentRepo := payments.NewRepository(dbClient.DB())
	withdrawalRepo := withdrawals.NewRepository(dbClient.DB())

	// Services
	walletSvc, err := wallets.NewService(walletRepo, logg)
	exitOn(ctx, logg, "wallets service", err)

	escrowSvc, err := escrow.NewService(escrowRepo, walletSvc, cfg.Fees, logg)
	exitOn(ctx, logg, "escrow service", err)

	orderSvc, err := orders.NewService(orderRepo, escrowSvc, logg)
	exitOn(ctx, logg, "orders service", err)

	notifyWorker, err := notify.NewWorker(cfg.Notify, notify.NewLogDispatcher(logg), paymentRepo, logg)
	exitOn(ctx, logg, "notify worker", err)

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		DB:        dbClient,
		Repo:      paymentRepo,
		Orders:    orderSvc,
		Wallets:   walletSvc,
		Notifier:  notifyWorker,
		Logger:    logg,
		Tolerance: cfg.Tickets.Tolerance(),
	})
	exitOn(ctx, logg, "payments service", err)

	providerClient, err := mobilepay.NewClient(ctx, cfg.Payout, logg)
	exitOn(ctx, logg, "payout provider client", err)

	withdrawalSvc, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:        dbClient,
		Repo:      withdrawalRepo,
		Wallets:   walletSvc,
		Provider:  providerClient,
		Notifier:  notifyWorker,
		Logger:    logg,
		Bounds:    cfg.Withdrawals,
		Fees:      cfg.Fees,
		Narration: cfg.Payout.Narration,
	})
	exitOn(ctx, logg, "withdrawals service", err)

	executor, err := withdrawals.NewExecutor(withdrawalSvc, cfg.Withdrawals.ExecutorQueue, logg)
	exitOn(ctx, logg, "withdrawal executor", err)
	withdrawalSvc.SetSubmitter(executor.Submit)

	consumer, err := paymentevents.NewConsumer(redisClient, redisClient.QueueKey("payment-events"), paymentSvc, logg)
	exitOn(ctx, logg, "payment events consumer", err)

	// Sweeps
	sweepMetrics := metrics.NewSweepJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
	exitOn(ctx, logg, "sweep lock", err)

	deadlineJob, err := cron.NewDeliveryDeadlineJob(cron.DeliveryDeadlineJobParams{
		Logger:    logg,
		DB:        dbClient,
		Reader:    orderRepo,
		Orders:    orderSvc,
		Notifier:  notifyWorker,
		Deadlines: cfg.Deadlines,
		BatchSize: cfg.Sweep.BatchSize,
	})
	exitOn(ctx, logg, "delivery deadline job", err)

	releaseJob, err := cron.NewServiceReleaseJob(cron.ServiceReleaseJobParams{
		Logger:    logg,
		DB:        dbClient,
		Reader:    orderRepo,
		Orders:    orderSvc,
		Notifier:  notifyWorker,
		Deadlines: cfg.Deadlines,
		BatchSize: cfg.Sweep.BatchSize,
	})
	exitOn(ctx, logg, "service release job", err)

	reconcileJob, err := cron.NewWithdrawalReconcileJob(cron.WithdrawalReconcileJobParams{
		Logger:      logg,
		Withdrawals: withdrawalSvc,
		Metrics:     sweepMetrics,
		BatchSize:   cfg.Sweep.BatchSize,
	})
	exitOn(ctx, logg, "withdrawal reconcile job", err)

	registry := cron.NewRegistry(deadlineJob, releaseJob, reconcileJob)
	sweeps, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Sweep.Interval,
	})
	exitOn(ctx, logg, "sweep service", err)

	logg.Info(ctx, "starting settlement worker")

	go runLoop(ctx, logg, "notify worker", notifyWorker.Run)
	go runLoop(ctx, logg, "withdrawal executor", executor.Run)
	go runLoop(ctx, logg, "payment events consumer", consumer.Run)

	if err := sweeps.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep service stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "settlement worker shutting down gracefully")
}

func runLoop(ctx context.Context, logg *logger.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, fmt.Sprintf("%s stopped unexpectedly", name), err)
	}
}

func exitOn(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to create %s", resource), err)
	os.Exit(1)
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}
