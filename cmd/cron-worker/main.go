package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tradepost-backend/internal/bootstrap"
	"github.com/angelmondragon/tradepost-backend/internal/cron"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
)

// retention prunes are cheap but pointless more than once a day
const pruneEvery = 24 * time.Hour

func main() {
	proc, err := bootstrap.Start("cron-worker")
	if err != nil {
		proc.Exit(err)
	}
	if err := run(proc); err != nil {
		proc.Exit(err)
	}
	proc.Close()
}

func run(proc *bootstrap.Process) error {
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient, err := proc.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := proc.Redis(ctx)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	notificationRepo := notifications.NewRepository(conn)
	dispatcher, err := notifications.NewDispatcher(notificationRepo)
	if err != nil {
		return fmt.Errorf("notification dispatcher: %w", err)
	}

	offersService, err := offers.NewService(offers.ServiceParams{
		DB:         dbClient,
		Repository: offers.NewRepository(conn),
		Listings:   listings.NewRepository(conn),
		Outbox:     outbox.NewService(outboxRepo, logg),
		Notifier:   dispatcher,
		Metrics:    metrics.NewOfferMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
		Policy:     offers.PolicyFromConfig(cfg.Marketplace),
	})
	if err != nil {
		return fmt.Errorf("offers service: %w", err)
	}

	expiration, err := cron.NewOfferExpirationJob(cron.OfferExpirationJobParams{Logger: logg, Sweeper: offersService})
	if err != nil {
		return fmt.Errorf("offer expiration job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(logg, dbClient, outboxRepo, cfg.Outbox.RetentionDays, cfg.Outbox.MaxAttempts)
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(logg, dbClient, notificationRepo, cfg.Cron.NotificationRetentionDays)
	if err != nil {
		return fmt.Errorf("notification cleanup job: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	jobs := cron.NewRegistry(expiration)
	jobs.RegisterEvery(outboxRetention, pruneEvery)
	jobs.RegisterEvery(notificationCleanup, pruneEvery)
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, logg); err != nil {
			logg.Error(ctx, "metrics endpoint stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cron worker stopped: %w", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
