package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecopower/ecopower/internal/database"
	"github.com/ecopower/ecopower/internal/logging"
	"github.com/ecopower/ecopower/internal/payments"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/server"
	"github.com/ecopower/ecopower/internal/storage"
	"github.com/ecopower/ecopower/internal/sweep"
)

func main() {
	logger := logging.Setup(os.Getenv("ECOPOWER_LOG_LEVEL"))

	port := envOr("ECOPOWER_PORT", "8080")
	dbPath := envOr("ECOPOWER_DB_PATH", "ecopower.db")

	jwtSecret := os.Getenv("ECOPOWER_JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("ECOPOWER_JWT_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		JWTSecret: jwtSecret,
		FreeMode:  os.Getenv("ECOPOWER_FREE_MODE") == "true",
		Push: push.Config{
			VAPIDPublicKey:  os.Getenv("ECOPOWER_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("ECOPOWER_VAPID_PRIVATE_KEY"),
			Subscriber:      os.Getenv("ECOPOWER_VAPID_SUBSCRIBER"),
		},
		Stripe: payments.Config{
			SecretKey:     os.Getenv("ECOPOWER_STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("ECOPOWER_STRIPE_WEBHOOK_SECRET"),
			Currency:      os.Getenv("ECOPOWER_STRIPE_CURRENCY"),
			SuccessURL:    os.Getenv("ECOPOWER_STRIPE_SUCCESS_URL"),
			CancelURL:     os.Getenv("ECOPOWER_STRIPE_CANCEL_URL"),
		},
		Storage: storage.S3Config{
			Endpoint:  os.Getenv("ECOPOWER_S3_ENDPOINT"),
			Bucket:    os.Getenv("ECOPOWER_S3_BUCKET"),
			Region:    os.Getenv("ECOPOWER_S3_REGION"),
			AccessKey: os.Getenv("ECOPOWER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ECOPOWER_S3_SECRET_KEY"),
			PublicURL: os.Getenv("ECOPOWER_S3_PUBLIC_URL"),
		},
	}

	srv := server.New(db, cfg, logger)

	scheduler, err := sweep.NewScheduler(srv.Runner(), os.Getenv("ECOPOWER_SCHEDULE_TZ"), logger)
	if err != nil {
		logger.Error("configure scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
