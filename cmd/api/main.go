package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miguelavelar/loomchat-backend/api/routes"
	"github.com/miguelavelar/loomchat-backend/internal/ai"
	"github.com/miguelavelar/loomchat-backend/internal/plans"
	"github.com/miguelavelar/loomchat-backend/internal/quota"
	"github.com/miguelavelar/loomchat-backend/internal/subscriptions"
	"github.com/miguelavelar/loomchat-backend/internal/usage"
	"github.com/miguelavelar/loomchat-backend/internal/users"
	"github.com/miguelavelar/loomchat-backend/pkg/config"
	"github.com/miguelavelar/loomchat-backend/pkg/db"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
	"github.com/miguelavelar/loomchat-backend/pkg/metrics"
	"github.com/miguelavelar/loomchat-backend/pkg/migrate"
	"github.com/miguelavelar/loomchat-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	plansService, err := plans.NewService(plans.ServiceParams{
		Repo: plans.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	if cfg.FeatureFlags.SeedPlans {
		if err := plansService.SeedDefaults(context.Background()); err != nil {
			logg.Error(context.Background(), "failed to seed plan catalog", err)
			os.Exit(1)
		}
	}

	usageService, err := usage.NewService(usage.ServiceParams{
		Repo: usage.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	admissionMetrics := metrics.NewAdmissionMetrics(prometheus.DefaultRegisterer)

	quotaService, err := quota.NewService(quota.ServiceParams{
		Repo:  quota.NewRepository(dbClient.DB()),
		Plans: plansService,
		Usage: usageService,
		Estimator: quota.NewEstimator(
			cfg.Quota.EstimateOverheadTokens,
			cfg.AI.SearchMultiplier,
			cfg.Quota.MinReserveTokens,
		),
		Metrics: admissionMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:   subscriptions.NewRepository(dbClient.DB()),
		Users:  users.NewRepository(dbClient.DB()),
		Plans:  plansService,
		Quota:  quotaService,
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	aiClient, err := ai.NewClient(ai.ClientParams{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ai client", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			plansService,
			subscriptionsService,
			usageService,
			quotaService,
			aiClient,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
