package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/data/mongo"
	"github.com/asoud/payment-core/internal/data/postgres"
	"github.com/asoud/payment-core/internal/events"
	gatewayadapters "github.com/asoud/payment-core/internal/gateway"
	"github.com/asoud/payment-core/internal/logger"
	"github.com/asoud/payment-core/internal/payment"
	"github.com/asoud/payment-core/internal/platform/messaging/producers"
	"github.com/asoud/payment-core/internal/platform/persistence"
	"github.com/asoud/payment-core/internal/reconciler"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("payment_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting payment worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize gateway adapters from configuration
	registry, err := gatewayadapters.NewRegistry(log, &cfg.Gateways)
	if err != nil {
		log.Error("Failed to initialize gateway registry", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	callbackArchive := mongo.NewCallbackArchive(log, mongoDB.Database())

	// Initialize the payment service used by the reconciler
	paymentService := payment.NewService(
		postgresDB,
		transactionRepo,
		ledgerRepo,
		walletRepo,
		outboxRepo,
		registry,
		payment.NewRetryScheduler(log, cfg.Retry),
		payment.NewCallbackVerifier(log),
		callbackArchive,
		log,
	)

	// Initialize Kafka status event producer
	statusProducer, err := producers.NewStatusEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize status event producer", "error", err)
		os.Exit(1)
	}

	// Initialize outbox poller
	eventPublisher := events.NewKafkaEventPublisher(outboxRepo, statusProducer, log)
	outboxPoller := events.NewPoller(&cfg.Outbox, outboxRepo, eventPublisher, log)

	// Initialize reconciliation poller
	reconcilerPoller, err := reconciler.NewPoller(
		&cfg.Reconciler,
		cfg.WorkerPool.Size,
		transactionRepo,
		paymentService,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize reconciliation poller", "error", err)
		os.Exit(1)
	}

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxPoller.Start(appCtx)
	}()

	// Start reconciliation poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconcilerPoller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	<-quit
	log.Info("Shutdown signal received")

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for the pollers to finish their in-flight batches
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All pollers stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Shutdown the reconciler worker pool
	reconcilerPoller.Shutdown()

	if err = statusProducer.Close(); err != nil {
		log.Error("Error closing status event producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	log.Info("Payment worker shutdown completed")
}
