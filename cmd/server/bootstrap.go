package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskboard/backend/internal/config"
	"github.com/taskboard/backend/internal/handlers"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/internal/utils"
	"github.com/taskboard/backend/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds the long-lived dependencies shared by the routes.
type appServices struct {
	db          *gorm.DB
	taskQueue   services.TaskQueue
	worker      *services.Worker
	scheduler   *services.MaintenanceScheduler
	redis       *redis.Client
	cache       *services.AnalyticsCache
	authService *services.AuthService
	authLimiter *middleware.RateLimiter
}

// bootstrap initializes the database, the event pipeline and the schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()
	services.InitSystemLogger(db)

	svc := &appServices{
		db:          db,
		authService: services.NewAuthService(db, &cfg.JWT),
		authLimiter: middleware.NewRateLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst),
	}

	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		client, err := services.NewRedisClient(ctx, &cfg.Redis)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, analytics cache disabled")
		} else {
			svc.redis = client
			ttl := time.Duration(cfg.Cache.AnalyticsTTLSeconds) * time.Second
			svc.cache = services.NewAnalyticsCache(services.NewTaskCountStore(db), client, ttl)
		}
	}

	// Uses Redis if enabled and reachable, otherwise sync mode
	var evicter services.CacheEvicter
	if svc.cache != nil {
		evicter = svc.cache
	}
	processor := services.NewEventProcessor(db, evicter)
	svc.taskQueue = services.InitTaskQueue(cfg)
	if syncQueue, ok := svc.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor.Process)
	}
	if svc.taskQueue.IsAsync() {
		svc.worker = services.NewWorker(&cfg.Redis)
		if svc.worker != nil {
			svc.worker.SetProcessor(processor.Process)
			if err := svc.worker.Start(); err != nil {
				logger.Errorf("Failed to start worker: %v", err)
			}
		}
	}

	svc.scheduler = services.NewMaintenanceScheduler(db, cfg.Maintenance)
	if err := svc.scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start maintenance scheduler: %v", err)
	}

	return svc
}

func (s *appServices) analyticsCounter() services.TaskCounter {
	if s.cache != nil {
		return s.cache
	}
	return nil
}

func (s *appServices) cachePinger() handlers.Pinger {
	if s.cache != nil {
		return s.cache
	}
	return nil
}

// shutdown stops background work in reverse start order.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.authLimiter != nil {
		s.authLimiter.Stop()
	}
	logger.Info().Msg("Background services stopped")
}
