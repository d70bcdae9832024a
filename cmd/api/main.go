package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/defense-scheduler/api/swagger"
	"github.com/noah-isme/defense-scheduler/internal/handler"
	internalmiddleware "github.com/noah-isme/defense-scheduler/internal/middleware"
	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/repository"
	"github.com/noah-isme/defense-scheduler/internal/scheduler"
	"github.com/noah-isme/defense-scheduler/internal/service"
	"github.com/noah-isme/defense-scheduler/pkg/cache"
	"github.com/noah-isme/defense-scheduler/pkg/config"
	"github.com/noah-isme/defense-scheduler/pkg/database"
	"github.com/noah-isme/defense-scheduler/pkg/jobs"
	"github.com/noah-isme/defense-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/defense-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/defense-scheduler/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Defense Scheduler API
// @version 1.0.0
// @description Thesis defense scheduling with a genetic optimizer
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, keeping proposals in memory", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	var proposals service.ProposalStore
	if cacheRepo.Enabled() {
		proposals = repository.NewProposalRepository(cacheRepo, cfg.Scheduler.ProposalTTL)
	}

	metricsSvc := service.NewMetricsService()
	tokens := service.NewTokenService(cfg.JWT)

	defenseSvc := service.NewDefenseSchedulerService(
		repository.NewDefenseDataRepository(db),
		repository.NewDefenseScheduleRepository(db),
		repository.NewDefenseScheduleSlotRepository(db),
		proposals,
		db,
		metricsSvc,
		validator.New(),
		logr,
		service.DefenseSchedulerConfig{
			Engine:      scheduler.FromSettings(cfg.Scheduler),
			ProposalTTL: cfg.Scheduler.ProposalTTL,
			MaxRetries:  cfg.Scheduler.QueueRetries,
		},
	)

	optimizerQueue := jobs.NewQueue("defense-optimizer", defenseSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Scheduler.QueueWorkers,
		MaxRetries: cfg.Scheduler.QueueRetries,
		RetryDelay: 2 * time.Second,
		JobTimeout: jobTimeout(cfg.Scheduler.MaxDuration),
		Logger:     logr,
	})
	optimizerQueue.Start(ctx)
	defer optimizerQueue.Stop()
	defenseSvc.UseQueue(optimizerQueue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc,
		handler.ReadinessProbe{Name: "postgres", Check: db.PingContext},
		handler.ReadinessProbe{Name: "redis", Check: cacheRepo.Ping},
	)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokens))
	admin := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	api.GET("/metrics/summary", admin, metricsHandler.Summary)

	defenseHandler := handler.NewDefenseSchedulerHandler(defenseSvc)
	defense := api.Group("/defense-schedules", admin)
	defense.POST("/optimize", internalmiddleware.Audit(logr, "optimize", "defense_proposal"), defenseHandler.Optimize)
	defense.POST("/jobs", internalmiddleware.Audit(logr, "enqueue", "defense_proposal"), defenseHandler.Enqueue)
	defense.GET("/proposals/:id", defenseHandler.Proposal)
	defense.GET("/proposals/:id/export", defenseHandler.Export)
	defense.POST("/save", internalmiddleware.Audit(logr, "save", "defense_schedule"), defenseHandler.Save)
	defense.GET("", defenseHandler.List)
	defense.GET("/:id/slots", defenseHandler.Slots)
	defense.DELETE("/:id", internalmiddleware.Audit(logr, "delete", "defense_schedule"), defenseHandler.Delete)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "port", cfg.Port, "env", cfg.Env, "redis", cacheRepo.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}

// jobTimeout gives queued runs a minute of slack past the engine deadline.
func jobTimeout(maxDuration time.Duration) time.Duration {
	if maxDuration <= 0 {
		return 0
	}
	return maxDuration + time.Minute
}
