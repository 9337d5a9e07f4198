package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osei-labs/marketplace-backend/api/controllers"
	webhookcontrollers "github.com/osei-labs/marketplace-backend/api/controllers/webhooks"
	"github.com/osei-labs/marketplace-backend/api/middleware"
	paystackwebhook "github.com/osei-labs/marketplace-backend/internal/webhooks/paystack"
	"github.com/osei-labs/marketplace-backend/pkg/config"
	"github.com/osei-labs/marketplace-backend/pkg/db"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
	"github.com/osei-labs/marketplace-backend/pkg/paystack"
	"github.com/osei-labs/marketplace-backend/pkg/redis"
)

// NewRouter wires the HTTP surface. The webhook and plan catalog endpoints
// are public; everything else under /api/v1 requires a bearer token.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	paymentService controllers.PaymentService,
	subscriptionService controllers.SubscriptionService,
	paystackClient *paystack.Client,
	webhookService *paystackwebhook.Service,
	webhookGuard *paystackwebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(dbP, redisClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", controllers.PlanList())
		r.Post("/webhooks/paystack", webhookcontrollers.PaystackWebhook(webhookService, paystackClient, webhookGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/payments", func(r chi.Router) {
				r.Post("/initialize", controllers.PaymentInitialize(paymentService, logg))
				r.Post("/verify", controllers.PaymentVerify(paymentService, logg))
				r.Get("/", controllers.PaymentList(paymentService, logg))
			})

			r.Get("/subscriptions", controllers.SubscriptionList(subscriptionService, logg))
		})
	})

	return r
}
