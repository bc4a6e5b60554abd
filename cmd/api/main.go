package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ecommerce-order-service/internal/client"
	"ecommerce-order-service/internal/config"
	"ecommerce-order-service/internal/logger"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/pricing"
	"ecommerce-order-service/internal/queue"
	"ecommerce-order-service/internal/repository"
	"ecommerce-order-service/internal/server"
	"ecommerce-order-service/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// load .env into os.Environ
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	productRepo := repository.NewProductRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	inventoryRepo := repository.NewInventoryRepository()

	if cfg.SeedDemo {
		if err := productRepo.Seed(ctx); err != nil {
			log.WithError(err).Fatal("Failed to seed products")
		}
		if err := customerRepo.Seed(ctx); err != nil {
			log.WithError(err).Fatal("Failed to seed customers")
		}
		log.Info("Demo data seeded")
	}

	registry, paypalVerifier := newGatewayRegistry(cfg)

	notifications, closeQueue, err := queue.Open(ctx, cfg.Queue, cfg.Redis, db)
	if err != nil {
		log.WithError(err).Fatal("Failed to open notification queue")
	}
	defer func() {
		if err := closeQueue(); err != nil {
			log.WithError(err).Warn("Close notification queue")
		}
	}()

	calculator := pricing.NewCalculator(
		cfg.Pricing.TaxRate,
		cfg.Pricing.ShippingFee,
		pricing.FlatRateCoupon{Rate: cfg.Pricing.CouponRate},
	)

	orderService := service.NewOrderService(
		db, calculator, cfg.Pricing.Currency, registry,
		customerRepo,
		orderRepo,
		inventoryRepo,
		paymentRepo,
		notifications,
	)
	paymentService := service.NewPaymentService(
		db, registry, paypalVerifier,
		orderRepo,
		paymentRepo,
		webhookEventRepo,
	)

	var workers sync.WaitGroup
	if cfg.Queue.EmbeddedWorker {
		worker := queue.NewWorker(notifications, queue.LogSender{}, cfg.Queue.Workers, cfg.Queue.PollInterval)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(ctx)
		}()
	}

	serverAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)

	// Init HTTP server
	srv := server.NewServer(cfg.Auth.JWTSecret, db, orderService, paymentService)

	log.WithField("addr", serverAddr).Info("Starting HTTP server")
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("Signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	cancel()
	workers.Wait()
	log.Info("Shutdown complete")
}

// newGatewayRegistry wires every configured gateway behind a circuit breaker.
// The offline gateway is always available.
func newGatewayRegistry(cfg *config.Config) (*client.GatewayRegistry, service.WebhookVerifier) {
	registry := client.NewGatewayRegistry()
	registry.Register(client.NewOfflineGateway(), model.PaymentMethodCashOnDelivery, model.PaymentMethodBankTransfer)

	var verifier service.WebhookVerifier
	if cfg.Paypal.Enabled() {
		paypal := client.NewPaypalGateway(cfg.Paypal, cfg.Gateway.Timeout)
		registry.Register(client.NewBreakerGateway(paypal, cfg.Gateway.Timeout), model.PaymentMethodPaypal, model.PaymentMethodWallet)
		verifier = paypal
		log.Info("PayPal gateway enabled")
	}

	if cfg.BrainTree.Enabled() {
		braintree := client.NewBraintreeGateway(cfg.BrainTree, cfg.Gateway.Timeout)
		registry.Register(client.NewBreakerGateway(braintree, cfg.Gateway.Timeout), model.PaymentMethodCard)
		log.Info("Braintree gateway enabled")
	}

	return registry, verifier
}
