package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miguelavelar/loomchat-backend/api/controllers"
	chatcontrollers "github.com/miguelavelar/loomchat-backend/api/controllers/chat"
	subscriptionControllers "github.com/miguelavelar/loomchat-backend/api/controllers/subscriptions"
	"github.com/miguelavelar/loomchat-backend/api/middleware"
	"github.com/miguelavelar/loomchat-backend/internal/ai"
	"github.com/miguelavelar/loomchat-backend/internal/plans"
	"github.com/miguelavelar/loomchat-backend/internal/quota"
	subscriptionsvc "github.com/miguelavelar/loomchat-backend/internal/subscriptions"
	"github.com/miguelavelar/loomchat-backend/internal/usage"
	"github.com/miguelavelar/loomchat-backend/pkg/config"
	"github.com/miguelavelar/loomchat-backend/pkg/db"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
	pkgredis "github.com/miguelavelar/loomchat-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	plansService *plans.Service,
	subscriptionsService *subscriptionsvc.Service,
	usageService *usage.Service,
	quotaService *quota.Service,
	aiClient ai.Client,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP db.Pinger
	var idemStore pkgredis.IdempotencyStore
	if redisClient != nil {
		redisP = redisClient
		idemStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Get("/api/v1/subscriptions/plans", subscriptionControllers.ListPlans(plansService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/current", subscriptionControllers.Current(subscriptionsService, logg))
			r.With(middleware.Idempotency(idemStore, logg)).
				Post("/subscribe", subscriptionControllers.Subscribe(subscriptionsService, logg))
			r.Get("/usage-stats", subscriptionControllers.UsageStats(usageService, logg))
			r.Get("/usage-events", subscriptionControllers.UsageEvents(usageService, logg))
		})

		r.Route("/chat", func(r chi.Router) {
			r.With(middleware.TokenLimit(quotaService, logg, true)).
				Post("/search", chatcontrollers.Search(aiClient, quotaService, logg))
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
