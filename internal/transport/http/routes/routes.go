package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/infra/config"
	"github.com/taskbridge/provider-verification/internal/transport/http/handlers"
	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
	"github.com/taskbridge/provider-verification/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Flows    *usecase.FlowManager
	Storage  port.ObjectStorage
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS([]string{"*"}))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	checks := make([]handlers.ReadinessCheck, 0, 2)
	if deps.Database != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "database", Check: deps.Database.Ping})
	}
	if deps.Cache != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "redis", Check: deps.Cache.HealthCheck})
	}

	healthHandler := handlers.NewHealthHandler(checks...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.RequireAuth(deps.Config.JWT)

	api := r.Group("/api/v1")
	{
		onboarding := api.Group("/onboarding", authMiddleware)

		onboardingHandler := handlers.NewOnboardingHandler(deps.Flows)
		onboardingHandler.RegisterRoutes(onboarding)

		sessionHandler := handlers.NewSessionHandler(deps.Flows)
		sessionHandler.RegisterRoutes(onboarding.Group("/session"))

		stepsGroup := onboarding.Group("/steps")

		stepHandler := handlers.NewStepHandler(deps.Flows)
		stepHandler.RegisterRoutes(stepsGroup)

		lockHandler := handlers.NewLockHandler(deps.Flows)
		lockHandler.RegisterRoutes(stepsGroup)

		uploadHandler := handlers.NewUploadHandler(deps.Storage, signedURLTTL(deps.Config))
		uploadHandler.RegisterRoutes(onboarding.Group("/documents"))
	}

	return r
}

func signedURLTTL(cfg *config.AppConfig) time.Duration {
	if cfg != nil && cfg.Storage.SignedURLTTL > 0 {
		return cfg.Storage.SignedURLTTL
	}
	return 15 * time.Minute
}
