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

	_ "github.com/arif-dev/tuition-track-api/api/swagger"
	"github.com/arif-dev/tuition-track-api/internal/handler"
	"github.com/arif-dev/tuition-track-api/internal/middleware"
	"github.com/arif-dev/tuition-track-api/internal/repository"
	"github.com/arif-dev/tuition-track-api/internal/service"
	"github.com/arif-dev/tuition-track-api/pkg/cache"
	"github.com/arif-dev/tuition-track-api/pkg/config"
	"github.com/arif-dev/tuition-track-api/pkg/database"
	"github.com/arif-dev/tuition-track-api/pkg/jobs"
	"github.com/arif-dev/tuition-track-api/pkg/logger"
	corsmiddleware "github.com/arif-dev/tuition-track-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arif-dev/tuition-track-api/pkg/middleware/requestid"
)

// @title Tuition Track API
// @version 1.0.0
// @description Attendance and tuition fee tracking for private tutoring
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	rollupRepo := repository.NewRollupRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled)
		defer cacheRepo.Close() //nolint:errcheck
	}

	statusCache := service.NewStudentStatusCache(cfg.Students.StatusCacheSize, cfg.Students.StatusCacheTTL)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "tuition-track-api",
	})
	userSvc := service.NewUserService(userRepo, statusCache, validate, logr)
	rollupSvc := service.NewRollupService(feeRepo, attendanceRepo, rollupRepo, userRepo, cacheSvc, metricsSvc, logr)
	analyticsSvc := service.NewAnalyticsService(rollupRepo, attendanceRepo, cacheSvc, logr, cfg.Analytics.EpochMonth, cfg.Analytics.CacheTTL)

	// The queue and fee service reference each other: the fee service
	// enqueues rollup jobs and the queue dispatches recalculation jobs back
	// into the fee service. Late-bind the dispatcher to break the cycle.
	var dispatcher *service.JobDispatcher
	queue := jobs.NewQueue("background", func(ctx context.Context, job jobs.Job) error {
		return dispatcher.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})

	feeSvc := service.NewFeeService(service.FeeServiceParams{
		Attendance:    attendanceRepo,
		Students:      userRepo,
		Dues:          feeRepo,
		Queue:         queue,
		Metrics:       metricsSvc,
		Validator:     validate,
		Logger:        logr,
		BatchSize:     cfg.Fees.RecalcBatchSize,
		ReceiptFooter: cfg.Fees.ReceiptFooter,
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, userRepo, statusCache, queue, validate, logr)
	dispatcher = service.NewJobDispatcher(feeSvc, rollupSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc, userSvc),
		Users:      handler.NewUserHandler(userSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Fees:       handler.NewFeeHandler(feeSvc),
		Analytics:  handler.NewAnalyticsHandler(analyticsSvc, rollupSvc),
		Metrics:    metricsHandler,

		ExportsEnabled: cfg.Exports.Enabled,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
