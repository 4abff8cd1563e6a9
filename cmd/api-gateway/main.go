package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/skillforge/skillforge-api/api/swagger"
	"github.com/skillforge/skillforge-api/internal/handler"
	"github.com/skillforge/skillforge-api/internal/middleware"
	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/repository"
	"github.com/skillforge/skillforge-api/internal/service"
	"github.com/skillforge/skillforge-api/pkg/cache"
	"github.com/skillforge/skillforge-api/pkg/config"
	"github.com/skillforge/skillforge-api/pkg/database"
	"github.com/skillforge/skillforge-api/pkg/jobs"
	"github.com/skillforge/skillforge-api/pkg/logger"
	corsmiddleware "github.com/skillforge/skillforge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/skillforge/skillforge-api/pkg/middleware/requestid"
	"github.com/skillforge/skillforge-api/pkg/storage"
)

// @title SkillForge API
// @version 1.0.0
// @description Course catalog, enrollments and lesson progress tracking
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
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr, cfg.Stats.Enabled)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	profileSvc := service.NewProfileService(userRepo, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, logr)
	statsSvc := service.NewStatsService(enrollmentRepo, courseRepo, cacheSvc, cfg.Stats.CacheTTL, logr)
	progressSvc := service.NewProgressService(enrollmentRepo, courseRepo, statsSvc, logr)
	feedbackSvc := service.NewFeedbackService(feedbackRepo, nil, logr)

	statsQueue := jobs.NewQueue("course-stats", statsSvc.HandleRefreshJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	statsSvc.AttachQueue(statsQueue)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Warnw("export archive unavailable", "error", err)
		exportStore = nil
	} else {
		signer := storage.NewSignedURLSigner(cfg.Exports.SigningSecret, cfg.Exports.LinkTTL)
		statsSvc.AttachExportStore(exportStore, signer)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statsQueue.Start(rootCtx)
	defer statsQueue.Stop()

	if exportStore != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					deleted, err := exportStore.CleanupOlderThan(cfg.Exports.LinkTTL)
					if err != nil {
						logr.Sugar().Warnw("export cleanup failed", "error", err)
					} else if len(deleted) > 0 {
						logr.Sugar().Infow("removed expired exports", "count", len(deleted))
					}
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	profileHandler := handler.NewProfileHandler(profileSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, cfg.Catalog.DefaultPageSize, cfg.Catalog.MaxPageSize)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	progressHandler := handler.NewProgressHandler(progressSvc, metricsSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	feedbackHandler := handler.NewFeedbackHandler(feedbackSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	me := api.Group("/me", middleware.JWT(authSvc))
	{
		me.GET("", profileHandler.Get)
		me.PUT("", profileHandler.Update)
	}

	api.POST("/feedback", feedbackHandler.Submit)

	courses := api.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", middleware.OptionalJWT(authSvc), courseHandler.Get)
		courses.GET("/:id/lessons", middleware.OptionalJWT(authSvc), courseHandler.ListLessons)

		instructorOnly := middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin)

		courses.POST("", middleware.JWT(authSvc), instructorOnly, courseHandler.Create)
		courses.PUT("/:id", middleware.JWT(authSvc), instructorOnly, courseHandler.Update)
		courses.DELETE("/:id", middleware.JWT(authSvc), instructorOnly, courseHandler.Delete)
		courses.POST("/:id/lessons", middleware.JWT(authSvc), instructorOnly, courseHandler.AddLesson)
		courses.PUT("/:id/lessons/:lessonId", middleware.JWT(authSvc), instructorOnly, courseHandler.UpdateLesson)
		courses.DELETE("/:id/lessons/:lessonId", middleware.JWT(authSvc), instructorOnly, courseHandler.DeleteLesson)

		courses.POST("/:id/enroll", middleware.JWT(authSvc), enrollmentHandler.Enroll)
		courses.POST("/:id/lessons/:lessonId/progress", middleware.JWT(authSvc), progressHandler.ReportLesson)
		courses.GET("/:id/lessons/:lessonId/progress", middleware.JWT(authSvc), progressHandler.GetLesson)
		courses.PUT("/:id/progress", middleware.JWT(authSvc), progressHandler.SetCourse)

		courses.GET("/:id/stats", middleware.JWT(authSvc), instructorOnly, statsHandler.CourseStats)
		courses.GET("/:id/students", middleware.JWT(authSvc), instructorOnly, statsHandler.Roster)
		courses.GET("/:id/students/export", middleware.JWT(authSvc), instructorOnly, statsHandler.ExportRosterCSV)
		courses.GET("/:id/report", middleware.JWT(authSvc), instructorOnly, statsHandler.ExportReportPDF)
		courses.POST("/:id/exports", middleware.JWT(authSvc), instructorOnly, statsHandler.CreateExport)
	}

	api.GET("/exports/:token", statsHandler.Download)

	api.GET("/enrollments", middleware.JWT(authSvc), enrollmentHandler.ListMine)
	api.GET("/instructor/courses", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), courseHandler.ListMine)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
