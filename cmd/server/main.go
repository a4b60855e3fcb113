package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/cache"
	"github.com/parkpass/ticketing-backend/internal/config"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/handlers"
	"github.com/parkpass/ticketing-backend/internal/middleware"
	"github.com/parkpass/ticketing-backend/internal/queue"
	"github.com/parkpass/ticketing-backend/internal/services"
	"github.com/parkpass/ticketing-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting ParkPass ticketing backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Optional infrastructure: both degrade instead of failing startup
	var availability *cache.AvailabilityCache
	if cfg.Redis.URL != "" {
		availability, err = cache.NewAvailabilityCache(context.Background(), cfg.Redis.URL, cfg.Redis.AvailabilityTTL, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, availability reads go to the database")
			availability = nil
		} else {
			defer availability.Close()
			logger.Info("Availability cache enabled")
		}
	}

	var notifier services.NotificationDispatcher = queue.NewLogDispatcher(logger)
	if cfg.RabbitMQ.URL != "" {
		publisher, err := queue.NewNotificationPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.NotificationQueue, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, notifications are only logged")
		} else {
			defer publisher.Close()
			notifier = publisher
			logger.WithField("queue", cfg.RabbitMQ.NotificationQueue).Info("Notification publisher enabled")
		}
	}

	// Repositories
	txManager := database.NewTxManager(db.DB)
	slotRepository := database.NewSlotRepository(db.DB)
	bookingRepository := database.NewBookingRepository(db.DB)
	cartRepository := database.NewCartRepository(db.DB)
	catalogRepository := database.NewCatalogRepository(db.DB)
	offerRepository := database.NewOfferRepository(db.DB)
	couponRepository := database.NewCouponRepository(db.DB)
	holidayRepository := database.NewHolidayRepository(db.DB)
	templateRepository := database.NewSlotTemplateRepository(db.DB)
	auditRepository := database.NewPaymentAuditRepository(db.DB, logger)
	attemptRepository := database.NewPaymentAttemptRepository(db.DB)

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	ledger := services.NewCapacityLedger(slotRepository, logger)
	pricing := services.NewPricingEngine(catalogRepository, slotRepository, offerRepository, couponRepository, logger)
	scheduler := services.NewSlotScheduler(slotRepository, ledger, holidayRepository, templateRepository, txManager, logger)

	postCommit := services.NewTaskQueue(cfg.Booking.PostCommitWorkers, cfg.Booking.PostCommitQueueSize, logger)
	defer postCommit.Close()
	issuer := services.NewQRTicketIssuer(bookingRepository, logger)

	// Durable fulfillment tasks; without them paid bookings are fulfilled in process
	var distributor services.TaskDistributor
	var taskDistributor *queue.RedisTaskDistributor
	if cfg.Redis.URL != "" && cfg.Redis.FulfillmentTasks {
		taskDistributor, err = queue.NewRedisTaskDistributor(cfg.Redis.URL, cfg.Redis.FulfillmentMaxRetry, logger)
		if err != nil {
			logger.WithError(err).Warn("Fulfillment tasks unavailable, fulfilling in process")
		} else {
			defer taskDistributor.Close()
			distributor = taskDistributor
		}
	}
	fulfillment := services.NewFulfillment(issuer, bookingRepository, notifier, postCommit, distributor, cfg.Booking.NotifyWhatsApp, logger)

	var taskProcessor *queue.RedisTaskProcessor
	if taskDistributor != nil {
		taskProcessor, err = queue.NewRedisTaskProcessor(cfg.Redis.URL, cfg.Redis.FulfillmentConcurrency, fulfillment, logger)
		if err != nil {
			logger.Fatalf("Failed to create task processor: %v", err)
		}
		if err := taskProcessor.Start(); err != nil {
			logger.Fatalf("Failed to start task processor: %v", err)
		}
		logger.WithField("max_retry", cfg.Redis.FulfillmentMaxRetry).Info("Fulfillment task processor started")
	}

	bookingService := services.NewBookingService(txManager, ledger, pricing, bookingRepository, availability, logger)
	cartService := services.NewCartService(txManager, ledger, pricing, cartRepository, bookingRepository, availability, logger)

	gateway := services.NewPayPhiService(&cfg.Payment, logger)
	if !gateway.IsConfigured() {
		logger.Warn("Payment gateway is not configured, payment initiation will fail")
	}
	paymentService := services.NewPaymentService(gateway, bookingRepository, cartRepository, attemptRepository,
		cartService, fulfillment, auditRepository, availability, logger)

	cronService := services.NewCronService(cfg.Scheduler.CronSpec, scheduler, logger)
	if cfg.Scheduler.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	} else {
		logger.Info("Slot scheduler disabled, extension runs only on demand")
	}

	// Handlers
	pricingHandler := handlers.NewPricingHandler(pricing, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, paymentService, logger)
	cartHandler := handlers.NewCartHandler(cartService, paymentService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.Payment.ClientReturnURL, logger)
	slotHandler := handlers.NewSlotHandler(scheduler, cronService, logger)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck(db, version))

	requireAuth := middleware.AuthMiddleware(jwtService, logger)
	optionalAuth := middleware.OptionalAuth(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/pricing/preview", pricingHandler.Preview)
		v1.GET("/slots/:kind/:id/availability", bookingHandler.GetAvailability)

		bookings := v1.Group("/bookings", requireAuth)
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.POST("/combo", bookingHandler.CreateComboBooking)
			bookings.GET("/:ref", bookingHandler.GetBooking)
			bookings.POST("/:ref/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:ref/payment", bookingHandler.InitiatePayment)
		}

		cart := v1.Group("/cart", optionalAuth, middleware.RequireCartOwner())
		{
			cart.GET("", cartHandler.GetCart)
			cart.DELETE("", cartHandler.Abandon)
			cart.POST("/items", cartHandler.AddItem)
			cart.PUT("/items/:item_id", cartHandler.UpdateItem)
			cart.DELETE("/items/:item_id", cartHandler.RemoveItem)
			cart.POST("/checkout", cartHandler.Checkout)
		}

		payments := v1.Group("/payments")
		{
			payments.GET("/return", paymentHandler.Return)
			payments.POST("/return", paymentHandler.Return)
			payments.POST("/webhook", paymentHandler.Webhook)
		}

		admin := v1.Group("/admin", requireAuth, middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.POST("/bookings/:ref/refund", paymentHandler.Refund)
			admin.POST("/slots", slotHandler.CreateSlot)
			admin.POST("/slots/generate", slotHandler.GenerateSlots)
			admin.POST("/slots/extend", slotHandler.RunExtension)
			admin.GET("/cron/status", slotHandler.JobStatus)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.Payment.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if taskProcessor != nil {
		taskProcessor.Shutdown()
	}

	// Deferred: post-commit queue drains, then the publisher, cache and database close
	logger.Info("Server exited successfully")
}
