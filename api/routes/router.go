package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tradepost-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/admin"
	accountcontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/accounts"
	checkoutcontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/checkout"
	offercontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/offers"
	transactioncontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/transactions"
	webhookcontrollers "github.com/angelmondragon/tradepost-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tradepost-backend/api/middleware"
	"github.com/angelmondragon/tradepost-backend/internal/accounts"
	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/internal/payments"
	"github.com/angelmondragon/tradepost-backend/internal/settlement"
	"github.com/angelmondragon/tradepost-backend/internal/transactions"
	stripewebhook "github.com/angelmondragon/tradepost-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/db"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"github.com/angelmondragon/tradepost-backend/pkg/redis"
	"github.com/angelmondragon/tradepost-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	offersService offers.Service,
	paymentsService payments.Service,
	settlementService settlement.Service,
	transactionsService transactions.Service,
	accountsService accounts.Service,
	notificationsService notifications.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	deadLetters admincontrollers.DeadLetterService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	offerPolicy := middleware.NewRateLimitPolicy(
		"offers",
		cfg.Marketplace.OfferRateLimitWindow,
		cfg.Marketplace.OfferRateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, cfg.Eventing.RequestIdempotencyTTL, logg))

		r.Route("/offers", func(r chi.Router) {
			r.With(middleware.RateLimit(offerPolicy, redisClient, logg)).Post("/", offercontrollers.Create(offersService, logg))
			r.Get("/", offercontrollers.List(offersService, logg))
			r.Get("/{offerId}", offercontrollers.Get(offersService, logg))
			r.Get("/{offerId}/events", offercontrollers.Events(offersService, logg))
			r.Post("/{offerId}/accept", offercontrollers.Accept(offersService, logg))
			r.Post("/{offerId}/reject", offercontrollers.Reject(offersService, logg))
			r.Post("/{offerId}/counter", offercontrollers.Counter(offersService, logg))
			r.Post("/{offerId}/cancel", offercontrollers.Cancel(offersService, logg))
			r.Post("/{offerId}/extend", offercontrollers.Extend(offersService, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/intents", checkoutcontrollers.CreateIntent(paymentsService, logg))
			r.Get("/return", checkoutcontrollers.Return(settlementService, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactioncontrollers.List(transactionsService, logg))
			r.Get("/{transactionId}", transactioncontrollers.Get(transactionsService, logg))
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/connect", accountcontrollers.Connect(accountsService, logg))
			r.Get("/me", accountcontrollers.Me(accountsService, logg))
			r.Post("/me/resync", accountcontrollers.Resync(accountsService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Post("/offers/sweep", offercontrollers.AdminSweep(offersService, logg))
		r.Get("/outbox/dlq", admincontrollers.ListDeadLetters(deadLetters, logg))
		r.Post("/outbox/dlq/{dlqId}/requeue", admincontrollers.RequeueDeadLetter(deadLetters, logg))
	})

	return r
}
