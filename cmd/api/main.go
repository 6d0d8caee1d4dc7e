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

	"github.com/joho/godotenv"
	"github.com/rental-gate-api/internal/config"
	"github.com/rental-gate-api/internal/gateway"
	"github.com/rental-gate-api/internal/infrastructure/dynamo"
	"github.com/rental-gate-api/internal/infrastructure/kv"
	s3infra "github.com/rental-gate-api/internal/infrastructure/s3"
	"github.com/rental-gate-api/internal/infrastructure/smtp"
	"github.com/rental-gate-api/internal/infrastructure/sns"
	transporthttp "github.com/rental-gate-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// OTP/session state backend.
	var store kv.Store
	if cfg.KVBackend == "dynamo" {
		store = kv.NewDynamoStore(dynamoClient, cfg.DynamoTables.KV)
	} else {
		store = kv.NewMemoryStore()
	}

	// SMTP mailer for OTP delivery.
	mailer := smtp.NewMailer(cfg)

	// Payment gateway adapters. Missing credentials keep an adapter out of
	// the registry rather than failing startup.
	registry := gateway.NewRegistry()
	if a, err := gateway.NewStripeAdapter(cfg.StripeSecretKey); err == nil {
		registry.Register(a)
	} else {
		log.Printf("WARN: stripe adapter not available: %v", err)
	}
	if a, err := gateway.NewCashfreeAdapter(cfg.CashfreeAppID, cfg.CashfreeSecretKey, cfg.CashfreeBaseURL); err == nil {
		registry.Register(a)
	} else {
		log.Printf("WARN: cashfree adapter not available: %v", err)
	}
	if !cfg.Production() && cfg.GatewayAllowMock {
		registry.Register(gateway.NewMockAdapter())
		log.Println("WARN: mock gateway enabled")
	}

	// Optional webhook payload archive.
	var archive *s3infra.Archive
	if cfg.S3WebhookBucket != "" {
		archive = s3infra.NewArchive(s3infra.NewClient(cfg), cfg.S3WebhookBucket)
	}

	// Optional operator notifications.
	var publisher sns.EventPublisher
	if cfg.SNSPaymentTopicARN != "" {
		if p, err := sns.NewPublisher(cfg); err == nil {
			publisher = p
		} else {
			log.Printf("WARN: SNS publisher not available: %v", err)
		}
	}

	deps := &transporthttp.Deps{
		KV:              store,
		UserRepo:        dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		PaymentRepo:     dynamo.NewPaymentRepo(dynamoClient, cfg.DynamoTables.Payments),
		EntitlementRepo: dynamo.NewEntitlementRepo(dynamoClient, cfg.DynamoTables.Entitlements),
		VideoRepo:       dynamo.NewVideoRepo(dynamoClient, cfg.DynamoTables.Videos),
		Mailer:          mailer,
		Registry:        registry,
		Archive:         archive,
		Publisher:       publisher,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
