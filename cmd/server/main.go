package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/config"
	"github.com/travelhub/booking-service/internal/database"
	"github.com/travelhub/booking-service/internal/handlers"
	"github.com/travelhub/booking-service/internal/middleware"
	"github.com/travelhub/booking-service/internal/models"
	"github.com/travelhub/booking-service/internal/services"
	"github.com/travelhub/booking-service/pkg/events"
	"github.com/travelhub/booking-service/pkg/inventory"
	"github.com/travelhub/booking-service/pkg/jwt"
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

	logger.Info("Starting TravelHub Booking Service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	bookingRepository := database.NewBookingRepository(db.DB)
	idempotencyRepository := database.NewIdempotencyRepository(db.DB)

	// Inventory clients
	inventoryConfig := func(baseURL string) inventory.Config {
		return inventory.Config{
			BaseURL:      baseURL,
			APIKey:       cfg.Inventory.APIKey,
			Timeout:      cfg.Inventory.Timeout,
			MaxRetries:   cfg.Inventory.MaxRetries,
			RetryBackoff: cfg.Inventory.RetryBackoff,
		}
	}
	clients := services.ResourceClients{
		models.ResourceFlight: inventory.NewFlightClient(inventoryConfig(cfg.Inventory.FlightURL), logger),
		models.ResourceHotel:  inventory.NewHotelClient(inventoryConfig(cfg.Inventory.HotelURL), logger),
		models.ResourceCar:    inventory.NewCarClient(inventoryConfig(cfg.Inventory.CarURL), logger),
	}

	billingService := services.NewBillingService(services.BillingConfig{
		BaseURL: cfg.Billing.URL,
		APIKey:  cfg.Billing.APIKey,
		Timeout: cfg.Billing.Timeout,
	}, logger)

	// Event stream
	confirmedProducer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ConfirmedTopic)
	defer confirmedProducer.Close()
	paymentConsumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, cfg.Kafka.ConsumerGroupID)
	defer paymentConsumer.Close()

	// Orchestrator
	orchestrator := services.NewBookingOrchestratorService(
		bookingRepository,
		idempotencyRepository,
		clients,
		billingService,
		confirmedProducer,
		services.BookingOrchestratorConfig{
			DefaultCurrency:    cfg.Orchestrator.DefaultCurrency,
			CallTimeout:        cfg.Orchestrator.CallTimeout,
			ConfirmationPrefix: services.DefaultOrchestratorConfig().ConfirmationPrefix,
		},
		logger,
	)
	logger.Info("Booking orchestrator initialized")

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	eventConsumer := services.NewPaymentEventConsumer(paymentConsumer, orchestrator, services.PaymentEventConsumerConfig{
		NotFoundRetries:   cfg.Kafka.NotFoundRetries,
		NotFoundBackoff:   cfg.Kafka.NotFoundBackoff,
		FetchErrorBackoff: cfg.Kafka.FetchErrorBackoff,
	}, logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		eventConsumer.Run(workerCtx)
	}()

	cronService := services.NewCronService(idempotencyRepository, cfg.Orchestrator.IdempotencyTTL, cfg.Orchestrator.CleanupSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Handlers
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	bookingHandler := handlers.NewBookingHandler(orchestrator, logger)
	adminHandler := handlers.NewAdminHandler(cronService, logger)
	healthHandler := handlers.NewHealthHandler(db, version)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService, logger))
	bookingHandler.RegisterRoutes(v1)
	adminHandler.RegisterRoutes(v1)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Covers a full saga with retries
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	cronService.Stop()
	stopWorkers()
	workers.Wait()

	logger.Info("Server exited successfully")
}
