package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"ecommerce-order-service/internal/client"
	"ecommerce-order-service/internal/config"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/pricing"
	"ecommerce-order-service/internal/queue"
	"ecommerce-order-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testCustomerID  = "customer-1"
	otherCustomerID = "customer-2"
	keyboardID      = "product-keyboard"
	mouseID         = "product-mouse"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingProducer struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (p *recordingProducer) Enqueue(_ context.Context, job queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingProducer) enqueued() []queue.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Job(nil), p.jobs...)
}

// fakeGateway answers every capture with captureResult or captureErr.
type fakeGateway struct {
	mu            sync.Mutex
	name          string
	captureResult *client.CaptureResult
	captureErr    error
	refundErr     error
	// onCapture runs before the capture is answered
	onCapture     func()

	captures int
	refunds  []client.RefundRequest
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateCharge(_ context.Context, req client.ChargeRequest) (*client.Charge, error) {
	return &client.Charge{
		Handle:      fmt.Sprintf("%s-%s", g.name, req.Reference),
		ClientToken: "token-" + req.Reference,
	}, nil
}

func (g *fakeGateway) Capture(_ context.Context, req client.CaptureRequest) (*client.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.captures++
	if g.onCapture != nil {
		g.onCapture()
	}
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	if g.captureResult != nil {
		return g.captureResult, nil
	}
	return &client.CaptureResult{Outcome: client.CaptureCaptured, TransactionRef: "txn-" + req.Handle}, nil
}

func (g *fakeGateway) Refund(_ context.Context, req client.RefundRequest) (*client.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return &client.RefundResult{RefundRef: fmt.Sprintf("refund-%d", len(g.refunds))}, nil
}

func (g *fakeGateway) captureCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

type testEnv struct {
	db            *gorm.DB
	products      repository.ProductRepository
	customers     repository.CustomerRepository
	orders        repository.OrderRepository
	payments      repository.PaymentRepository
	webhookEvents repository.WebhookEventRepository
	producer      *recordingProducer
	card          *fakeGateway
	paypal        *fakeGateway
	gateways      *client.GatewayRegistry
	orderService  OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := client.InitDatabase(config.Database{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "service.db") + "?_busy_timeout=5000&_txlock=immediate",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		db:            db,
		products:      repository.NewProductRepository(db),
		customers:     repository.NewCustomerRepository(db),
		orders:        repository.NewOrderRepository(db),
		payments:      repository.NewPaymentRepository(db),
		webhookEvents: repository.NewWebhookEventRepository(db),
		producer:      &recordingProducer{},
		card:          &fakeGateway{name: "card-gateway"},
		paypal:        &fakeGateway{name: client.PaypalGatewayName},
		gateways:      client.NewGatewayRegistry(),
	}
	env.gateways.Register(env.card, model.PaymentMethodCard)
	env.gateways.Register(env.paypal, model.PaymentMethodPaypal, model.PaymentMethodWallet)
	env.gateways.Register(client.NewOfflineGateway(), model.PaymentMethodCashOnDelivery, model.PaymentMethodBankTransfer)

	calculator := pricing.NewCalculator(dec("0.10"), dec("9.99"), pricing.FlatRateCoupon{Rate: dec("0.10")})
	env.orderService = NewOrderService(db, calculator, "USD", env.gateways, env.customers, env.orders,
		repository.NewInventoryRepository(), env.payments, env.producer)

	ctx := context.Background()
	require.NoError(t, env.customers.Create(ctx, &model.Customer{ID: testCustomerID, Email: "buyer@example.com", Name: "Buyer"}))
	require.NoError(t, env.customers.Create(ctx, &model.Customer{ID: otherCustomerID, Email: "other@example.com", Name: "Other"}))
	env.addProduct(t, keyboardID, "50.00", 10)
	env.addProduct(t, mouseID, "30.00", 10)

	return env
}

func (e *testEnv) addProduct(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, e.products.Create(context.Background(), &model.Product{
		ID:    id,
		Name:  id,
		Price: dec(price),
		Stock: stock,
	}))
}

func (e *testEnv) stockOf(t *testing.T, productID string) int {
	t.Helper()
	product, err := e.products.FindByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

// placeStandardOrder buys 2 keyboards and 1 mouse: 130.00 + 13.00 tax + 9.99 shipping.
func (e *testEnv) placeStandardOrder(t *testing.T, method model.PaymentMethod) *model.Order {
	t.Helper()
	order, err := e.orderService.Create(context.Background(), testCustomerID, CreateOrderInput{
		Items: []CreateOrderItem{
			{ProductID: keyboardID, Quantity: 2},
			{ProductID: mouseID, Quantity: 1},
		},
		PaymentMethod:   method,
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)
	return order
}
