package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/98iam/classtrack-api/api/swagger"
	"github.com/98iam/classtrack-api/internal/handler"
	internalmiddleware "github.com/98iam/classtrack-api/internal/middleware"
	"github.com/98iam/classtrack-api/internal/repository"
	"github.com/98iam/classtrack-api/internal/service"
	"github.com/98iam/classtrack-api/pkg/cache"
	"github.com/98iam/classtrack-api/pkg/config"
	"github.com/98iam/classtrack-api/pkg/database"
	"github.com/98iam/classtrack-api/pkg/logger"
	corsmiddleware "github.com/98iam/classtrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/98iam/classtrack-api/pkg/middleware/requestid"
)

// @title ClassTrack API
// @version 1.0.0
// @description Classroom attendance tracking: roster, daily sessions, ledger statistics
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
		// The roster cache is an optimisation; the API works without it.
		logr.Sugar().Warnw("redis unavailable, roster cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, validate, logr, cfg.Attendance.Timezone).
		WithMetrics(metrics)
	attendanceSvc.Subscribe(service.NewCacheInvalidationListener(cacheRepo, logr))

	studentSvc := service.NewStudentService(studentRepo, attendanceRepo, validate, logr).
		WithMetrics(metrics).
		WithAlertThreshold(cfg.Alerts.MinConsecutiveAbsences)
	if redisClient != nil {
		studentSvc.WithCache(cacheRepo, cfg.Attendance.RosterCacheTTL)
	}

	sessionSvc := service.NewSessionService(studentSvc, attendanceSvc, logr).
		WithMetrics(metrics)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(attendanceRepo, logr)
	}

	studentHandler := handler.NewStudentHandler(studentSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		students := api.Group("/students")
		{
			students.GET("", studentHandler.List)
			students.GET("/alerts", studentHandler.Alerts)
			students.GET("/:id", studentHandler.Get)
			students.GET("/:id/verify", studentHandler.Verify)
			students.POST("", studentHandler.Create)
			students.PUT("/:id", studentHandler.Update)
			students.POST("/:id/archive", studentHandler.Archive)
			students.POST("/:id/restore", studentHandler.Restore)
			students.POST("/:id/stats/reset", studentHandler.ResetStats)
			students.DELETE("/:id", studentHandler.Delete)
		}

		session := api.Group("/session")
		{
			session.GET("", sessionHandler.View)
			session.POST("/start", sessionHandler.Start)
			session.POST("/decide", sessionHandler.Decide)
			session.POST("/undo", sessionHandler.Undo)
			session.POST("/close", sessionHandler.Close)
		}

		attendance := api.Group("/attendance")
		{
			attendance.GET("", attendanceHandler.List)
			attendance.GET("/date/:date", attendanceHandler.ByDate)
			attendance.GET("/students/:id", attendanceHandler.StudentHistory)
			attendance.GET("/summary/:year/:month", attendanceHandler.MonthlySummary)
			attendance.GET("/export", attendanceHandler.Export)
			attendance.POST("/recompute/:id", attendanceHandler.Recompute)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
