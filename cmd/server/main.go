package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enrollment-service/config"
	"enrollment-service/internal/api"
	"enrollment-service/internal/broker"
	"enrollment-service/internal/paymob"
	"enrollment-service/internal/redisclient"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"
	"enrollment-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "enrollment-service"

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting enrollment service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint, cfg.Server.Env, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEnrollments)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEnrollments))

	eventPublisher := broker.NewEventPublisher(producer)

	gateway := paymob.NewClient(paymob.Config{
		BaseURL:          cfg.Paymob.BaseURL,
		APIKey:           cfg.Paymob.APIKey,
		IntegrationID:    cfg.Paymob.IntegrationID,
		IframeID:         cfg.Paymob.IframeID,
		Currency:         cfg.Paymob.Currency,
		HMACSecret:       cfg.Paymob.HMACSecret,
		PaymentKeyExpiry: cfg.Paymob.PaymentKeyExpiry,
		StepTimeout:      cfg.Paymob.StepTimeout,
		MaxRetries:       cfg.Paymob.MaxRetries,
		RetryBackoff:     cfg.Paymob.RetryBackoff,
	})

	paymentService := service.NewPaymentService(db, db, gateway, redisClient, eventPublisher, service.Options{
		InitiationLockTTL: cfg.Business.InitiationLockTTL,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sweeper := worker.NewPendingSweeper(paymentService, cfg.Business.PendingTTL, cfg.Business.SweepInterval)
	go func() {
		if err := sweeper.Start(workerCtx); err != nil {
			logger.Error("Pending sweeper error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(paymentService, cfg.Business.CallbackRedirectURL, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	sweeper.Stop()
	workerCancel()

	logger.Info("Server exited")
}
