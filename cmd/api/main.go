package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tradepost-backend/api/routes"
	"github.com/angelmondragon/tradepost-backend/internal/accounts"
	"github.com/angelmondragon/tradepost-backend/internal/bootstrap"
	"github.com/angelmondragon/tradepost-backend/internal/email"
	"github.com/angelmondragon/tradepost-backend/internal/listings"
	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/internal/settlement"
	"github.com/angelmondragon/tradepost-backend/internal/transactions"
	"github.com/angelmondragon/tradepost-backend/internal/users"
	stripewebhook "github.com/angelmondragon/tradepost-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/tradepost-backend/pkg/metrics"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
	"github.com/angelmondragon/tradepost-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/tradepost-backend/pkg/stripe"
)

func main() {
	proc, err := bootstrap.Start("api")
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
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return fmt.Errorf("bootstrap stripe gateway: %w", err)
	}

	feeRate, err := money.ParseRate(cfg.Marketplace.PlatformFeeRate)
	if err != nil {
		return fmt.Errorf("platform fee rate: %w", err)
	}

	conn := dbClient.DB()
	offerRepo := offers.NewRepository(conn)
	listingRepo := listings.NewRepository(conn)
	transactionRepo := transactions.NewRepository(conn)
	notificationRepo := notifications.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	dispatcher, err := notifications.NewDispatcher(notificationRepo)
	if err != nil {
		return fmt.Errorf("notification dispatcher: %w", err)
	}

	offersService, err := offers.NewService(offers.ServiceParams{
		DB:         dbClient,
		Repository: offerRepo,
		Listings:   listingRepo,
		Outbox:     outboxService,
		Notifier:   dispatcher,
		Metrics:    metrics.NewOfferMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
		Policy:     offers.PolicyFromConfig(cfg.Marketplace),
	})
	if err != nil {
		return fmt.Errorf("offers service: %w", err)
	}

	accountsService, err := accounts.NewService(accounts.ServiceParams{
		DB:         dbClient,
		Repository: accounts.NewRepository(conn),
		Fetcher:    gateway,
		Outbox:     outboxService,
		Logger:     logg,
	})
	if err != nil {
		return fmt.Errorf("accounts service: %w", err)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Offers:    offerRepo,
		Listings:  listingRepo,
		Accounts:  accountsService,
		Gateway:   gateway,
		FeeRate:   feeRate,
		ReturnURL: stripeClient.ReturnURL(),
		Logger:    logg,
	})
	if err != nil {
		return fmt.Errorf("payments service: %w", err)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		DB:           dbClient,
		Transactions: transactionRepo,
		Listings:     listingRepo,
		Payments:     gateway,
		Outbox:       outboxService,
		Notifier:     dispatcher,
		Users:        users.NewRepository(conn),
		Email:        email.NewSender(cfg.Sendgrid, logg),
		Metrics:      metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
		EscrowHold:   cfg.Marketplace.EscrowHold(),
	})
	if err != nil {
		return fmt.Errorf("settlement service: %w", err)
	}

	transactionsService, err := transactions.NewService(transactionRepo)
	if err != nil {
		return fmt.Errorf("transactions service: %w", err)
	}
	notificationsService, err := notifications.NewService(notificationRepo)
	if err != nil {
		return fmt.Errorf("notifications service: %w", err)
	}

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Settlement: settlementService,
		Accounts:   accountsService,
		Logger:     logg,
	})
	if err != nil {
		return fmt.Errorf("stripe webhook service: %w", err)
	}
	stripeWebhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return fmt.Errorf("stripe webhook guard: %w", err)
	}
	deadLetters, err := outbox.NewDLQService(dbClient, outbox.NewDLQRepository(conn), logg)
	if err != nil {
		return fmt.Errorf("dead letter service: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: cfg.App.ReadHeaderTimeout,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			offersService,
			paymentsService,
			settlementService,
			transactionsService,
			accountsService,
			notificationsService,
			stripeClient,
			stripeWebhookService,
			stripeWebhookGuard,
			deadLetters,
		),
	}
	return serve(ctx, server, proc)
}

// serve runs server until ctx is canceled, then drains in-flight requests
// for up to the configured shutdown timeout.
func serve(ctx context.Context, server *http.Server, proc *bootstrap.Process) error {
	logg := proc.Logger
	logCtx := logg.WithField(ctx, "addr", server.Addr)
	errs := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	logg.Info(logCtx, "api server draining")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), proc.Config.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	logg.Info(logCtx, "api server stopped")
	return nil
}
