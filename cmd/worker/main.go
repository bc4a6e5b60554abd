package main

import (
	"context"
	"os/signal"
	"syscall"

	"ecommerce-order-service/internal/client"
	"ecommerce-order-service/internal/config"
	"ecommerce-order-service/internal/logger"
	"ecommerce-order-service/internal/queue"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Standalone notification worker. Run it with QUEUE_EMBEDDED_WORKER=false
// on the API processes.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}
	logger.Init(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid config")
	}

	db, err := client.InitDatabase(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to init database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	notifications, closeQueue, err := queue.Open(ctx, cfg.Queue, cfg.Redis, db)
	if err != nil {
		log.WithError(err).Fatal("Failed to open notification queue")
	}
	defer func() {
		if err := closeQueue(); err != nil {
			log.WithError(err).Warn("Close notification queue")
		}
	}()

	worker := queue.NewWorker(notifications, queue.LogSender{}, cfg.Queue.Workers, cfg.Queue.PollInterval)
	worker.Run(ctx)

	log.Info("Worker stopped")
}
