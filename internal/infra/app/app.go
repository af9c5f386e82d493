package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/infra/config"
	"github.com/taskbridge/provider-verification/internal/infra/database"
	"github.com/taskbridge/provider-verification/internal/infra/jobs"
	kafkainfra "github.com/taskbridge/provider-verification/internal/infra/kafka"
	"github.com/taskbridge/provider-verification/internal/infra/logger"
	redisinfra "github.com/taskbridge/provider-verification/internal/infra/redis"
	"github.com/taskbridge/provider-verification/internal/infra/storage"
	postgresrepo "github.com/taskbridge/provider-verification/internal/repository/postgres"
	redisrepo "github.com/taskbridge/provider-verification/internal/repository/redis"
	"github.com/taskbridge/provider-verification/internal/transport/http/middleware"
	"github.com/taskbridge/provider-verification/internal/transport/http/routes"
	"github.com/taskbridge/provider-verification/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	flows     *usecase.FlowManager
	scheduler *jobs.Scheduler
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	lockStore := redisrepo.NewStepLockStore(redisClient.Client())

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage, log)
	if err != nil {
		log.Warn("object storage unavailable, document uploads disabled", zap.Error(err))
		objectStore = nil
	} else if err := objectStore.EnsureBucket(ctx); err != nil {
		log.Warn("ensure storage bucket failed", zap.Error(err))
	}

	flows := usecase.NewFlowManager(usecase.FlowManagerOptions{
		Onboarding:        repos.Onboarding,
		Steps:             repos.Steps,
		Sessions:          repos.Sessions,
		LockStore:         lockStore,
		Events:            eventPublisher,
		SessionTTL:        cfg.Onboarding.SessionTTL,
		LockTTL:           cfg.Onboarding.LockTTL,
		HeartbeatInterval: cfg.Onboarding.HeartbeatInterval,
		MaxStepRetries:    cfg.Onboarding.MaxStepRetries,
		Logger:            log,
	})

	scheduler := jobs.NewScheduler(repos.Sessions, repos.Steps, cfg.Onboarding.SweepSchedule, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		log.Warn("metrics registration failed", zap.Error(err))
	}

	var objectStorage port.ObjectStorage
	if objectStore != nil {
		objectStorage = objectStore
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Flows:    flows,
		Storage:  objectStorage,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		producer:  producer,
		flows:     flows,
		scheduler: scheduler,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer a.flows.Shutdown()

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("start sweeper scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting provider verification API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
