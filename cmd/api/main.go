package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/DancingAppsDays/uniprotec-api/api/swagger"
	"github.com/DancingAppsDays/uniprotec-api/internal/handler"
	"github.com/DancingAppsDays/uniprotec-api/internal/middleware"
	"github.com/DancingAppsDays/uniprotec-api/internal/models"
	"github.com/DancingAppsDays/uniprotec-api/internal/notifier"
	"github.com/DancingAppsDays/uniprotec-api/internal/repository"
	"github.com/DancingAppsDays/uniprotec-api/internal/service"
	"github.com/DancingAppsDays/uniprotec-api/pkg/cache"
	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
	"github.com/DancingAppsDays/uniprotec-api/pkg/database"
	"github.com/DancingAppsDays/uniprotec-api/pkg/logger"
	corsmiddleware "github.com/DancingAppsDays/uniprotec-api/pkg/middleware/cors"
	reqidmiddleware "github.com/DancingAppsDays/uniprotec-api/pkg/middleware/requestid"
)

// @title Uniprotec API
// @version 1.0.0
// @description Course date lifecycle, enrollment capacity and bulk seat reservations
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	courseRepo := repository.NewCourseRepository(db)
	courseDateRepo := repository.NewCourseDateRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	purchaseRepo := repository.NewCompanyPurchaseRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	coordRepo := repository.NewCoordinationRepository(redisClient)

	// Notifications.
	var sender notifier.Notifier = notifier.Noop{}
	if cfg.Notifications.Enabled {
		sender = notifier.NewEmailNotifier(cfg.Notifications)
	}
	dispatcher := notifier.NewDispatcher(sender, cfg.Notifications, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Services.
	metrics := service.NewMetricsService()
	authService := service.NewAuthService(cfg.JWT)
	courseService := service.NewCourseService(courseRepo, logr)
	ledger := service.NewLedgerService(courseDateRepo, logr)
	policyService := service.NewPolicyService(policyRepo, courseRepo, nil, logr)
	courseDateService := service.NewCourseDateService(courseDateRepo, courseRepo, userRepo, policyService, dispatcher, nil, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, ledger, userRepo, courseDateRepo, dispatcher, nil, logr)
	purchaseService := service.NewCompanyPurchaseService(purchaseRepo, ledger, courseRepo, courseDateRepo, dispatcher, cfg.Purchases.AdminWebhookURL, nil, logr)
	paymentService := service.NewPaymentService(paymentRepo, courseRepo, courseDateRepo, enrollmentService, purchaseService, coordRepo, cfg.Stripe, cfg.Purchases.EventTTL, nil, logr)
	sweepService := service.NewSweepService(courseDateRepo, courseDateService, policyService, userRepo, coordRepo, dispatcher, metrics, cfg.Sweep, logr)
	reminderService := service.NewReminderService(courseDateRepo, enrollmentRepo, userRepo, coordRepo, dispatcher, cfg.Reminders, logr)

	sweepService.Schedule(ctx)
	reminderService.Schedule(ctx)

	// Handlers.
	courseHandler := handler.NewCourseHandler(courseService)
	courseDateHandler := handler.NewCourseDateHandler(courseDateService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	purchaseHandler := handler.NewCompanyPurchaseHandler(purchaseService)
	policyHandler := handler.NewPolicyHandler(policyService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	taskHandler := handler.NewTaskHandler(sweepService, reminderService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/courses", courseHandler.List)
		api.GET("/courses/:id", courseHandler.Get)

		api.GET("/course-dates", courseDateHandler.List)
		api.GET("/course-dates/upcoming", courseDateHandler.Upcoming)
		api.GET("/course-dates/:id", courseDateHandler.Get)

		api.POST("/enrollments", enrollmentHandler.Create)
		api.GET("/enrollments", enrollmentHandler.List)
		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.POST("/enrollments/:id/cancel", enrollmentHandler.Cancel)
		api.POST("/enrollments/:id/feedback", enrollmentHandler.Feedback)

		api.POST("/company-purchases", purchaseHandler.Create)
		api.GET("/company-purchases/track/:requestId", purchaseHandler.Track)

		api.POST("/payments/checkout", paymentHandler.CreateCheckout)
		api.GET("/payments/verify/:sessionId", paymentHandler.VerifySession)
	}

	admin := api.Group("/admin", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/course-dates", courseDateHandler.Create)
		admin.PUT("/course-dates/:id", courseDateHandler.Update)
		admin.PATCH("/course-dates/:id/status", courseDateHandler.UpdateStatus)
		admin.POST("/course-dates/:id/postpone", courseDateHandler.Postpone)
		admin.POST("/course-dates/:id/cancel", courseDateHandler.Cancel)
		admin.GET("/course-dates/at-risk", courseDateHandler.AtRisk)

		admin.PATCH("/enrollments/:id/status", enrollmentHandler.UpdateStatus)

		admin.GET("/company-purchases", purchaseHandler.List)
		admin.GET("/company-purchases/:id", purchaseHandler.Get)
		admin.PUT("/company-purchases/:id", purchaseHandler.Update)
		admin.PATCH("/company-purchases/:id/status", purchaseHandler.UpdateStatus)
		admin.POST("/company-purchases/:id/payment", purchaseHandler.RecordPayment)
		admin.POST("/company-purchases/:id/enrollments", purchaseHandler.AddEnrollment)
		admin.POST("/company-purchases/:id/cancel", purchaseHandler.Cancel)

		admin.GET("/policies", policyHandler.List)
		admin.GET("/policies/:courseId", policyHandler.Get)
		admin.GET("/policies/:courseId/effective", policyHandler.Effective)
		admin.PUT("/policies/:courseId", policyHandler.Upsert)
		admin.DELETE("/policies/:courseId", policyHandler.Delete)

		admin.POST("/payments/confirmed", paymentHandler.Confirmed)

		admin.POST("/tasks/postponement-check", taskHandler.PostponementCheck)
		admin.POST("/tasks/reminders", taskHandler.SendReminders)
	}

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
