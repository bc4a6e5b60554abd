package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/metrics"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/pricing"
	"ecommerce-order-service/internal/queue"
	"ecommerce-order-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// orderNumberAttempts bounds how often creation is retried when the
// generated order number collides with an existing one.
const orderNumberAttempts = 3

const recentOrdersInStats = 10

type CreateOrderItem struct {
	ProductID string
	Quantity  int
	// UnitPrice overrides the catalog price when positive.
	UnitPrice *decimal.Decimal
}

type CreateOrderInput struct {
	Items           []CreateOrderItem
	PaymentMethod   model.PaymentMethod
	ShippingAddress string
	BillingAddress  string
	CustomerNotes   string
	CouponCode      string
}

type UpdateStatusInput struct {
	Status        *model.OrderStatus
	PaymentStatus *model.OrderPaymentStatus
	AdminNotes    *string
}

// PaymentMethods reports which payment methods have a gateway behind them.
type PaymentMethods interface {
	Supports(method model.PaymentMethod) bool
}

type OrderService interface {
	Create(ctx context.Context, customerID string, in CreateOrderInput) (*model.Order, error)
	Get(ctx context.Context, orderID string, requester Requester) (*model.Order, error)
	ListByCustomer(ctx context.Context, customerID string, page repository.Page) ([]*model.Order, error)
	ListAll(ctx context.Context, filter repository.OrderFilter) ([]*model.Order, error)
	Stats(ctx context.Context) (*repository.OrderStats, error)
	UpdateStatus(ctx context.Context, orderID string, in UpdateStatusInput) (*model.Order, error)
	Cancel(ctx context.Context, orderID string, requester Requester) (*model.Order, error)
}

type orderServiceImpl struct {
	db            *gorm.DB
	calculator    *pricing.Calculator
	currency      string
	methods       PaymentMethods
	customerRepo  repository.CustomerRepository
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
	paymentRepo   repository.PaymentRepository
	notifications queue.Producer

	now         func() time.Time
	orderNumber func() string
}

func NewOrderService(
	db *gorm.DB,
	calculator *pricing.Calculator,
	currency string,
	methods PaymentMethods,
	customerRepo repository.CustomerRepository,
	orderRepo repository.OrderRepository,
	inventoryRepo repository.InventoryRepository,
	paymentRepo repository.PaymentRepository,
	notifications queue.Producer,
) OrderService {
	s := &orderServiceImpl{
		db:            db,
		calculator:    calculator,
		currency:      currency,
		methods:       methods,
		customerRepo:  customerRepo,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		paymentRepo:   paymentRepo,
		notifications: notifications,
		now:           time.Now,
	}
	s.orderNumber = s.newOrderNumber
	return s
}

// newOrderNumber renders ORD-<unix millis>-<3 digit random>.
func (s *orderServiceImpl) newOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%03d", s.now().UnixMilli(), rand.Intn(1000))
}

func (s *orderServiceImpl) validateCreateInput(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return apperror.Validation("order must contain at least one item")
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return apperror.Validation("item %d: productId is required", i)
		}
		if item.Quantity <= 0 {
			return apperror.Validation("item %d: quantity must be positive, got %d", i, item.Quantity)
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return apperror.Validation("item %d: unitPrice must not be negative", i)
		}
	}
	if !in.PaymentMethod.Valid() {
		return apperror.Validation("unsupported payment method %q", in.PaymentMethod)
	}
	if !s.methods.Supports(in.PaymentMethod) {
		return apperror.Validation("payment method %q is not available", in.PaymentMethod)
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return apperror.Validation("shippingAddress is required")
	}
	return nil
}

// Create reserves stock for every line, prices the order and persists it in
// one transaction. The confirmation notification is enqueued only after
// the commit.
func (s *orderServiceImpl) Create(ctx context.Context, customerID string, in CreateOrderInput) (*model.Order, error) {
	if err := s.validateCreateInput(in); err != nil {
		return nil, err
	}

	var (
		order    *model.Order
		customer *model.Customer
		err      error
	)
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order, customer, err = s.createOnce(ctx, customerID, in)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		log.WithFields(log.Fields{
			"customer_id": customerID,
			"attempt":     attempt,
		}).Warn("order number collision, retrying")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperror.Conflict("could not allocate a unique order number")
	}
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(order.Status)).Inc()
	log.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  customerID,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("order created")

	s.enqueueConfirmation(ctx, order, customer)

	return s.orderRepo.FindByID(ctx, order.ID)
}

func (s *orderServiceImpl) createOnce(ctx context.Context, customerID string, in CreateOrderInput) (*model.Order, *model.Customer, error) {
	order := &model.Order{
		ID:              uuid.NewString(),
		OrderNumber:     s.orderNumber(),
		CustomerID:      customerID,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.OrderPaymentUnpaid,
		PaymentMethod:   in.PaymentMethod,
		Currency:        s.currency,
		PaidAmount:      decimal.Zero,
		CouponCode:      strings.TrimSpace(in.CouponCode),
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		CustomerNotes:   in.CustomerNotes,
	}

	var customer *model.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		customer, err = s.customerRepo.FindByID(ctx, tx, customerID)
		if err != nil {
			return err
		}

		lines := make([]pricing.Line, len(in.Items))
		shipping := pricing.ShippingPolicy{Free: true}

		for i, item := range in.Items {
			product, err := s.inventoryRepo.Reserve(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}

			unitPrice := product.Price
			if item.UnitPrice != nil && item.UnitPrice.IsPositive() {
				unitPrice = *item.UnitPrice
			}
			unitPrice = pricing.Round(unitPrice)

			if !product.IsShippingFree {
				shipping.Free = false
			}

			lines[i] = pricing.Line{UnitPrice: unitPrice, Quantity: item.Quantity}
			order.Details = append(order.Details, &model.OrderDetail{
				ID:             uuid.NewString(),
				ProductID:      product.ID,
				ProductName:    product.Name,
				ProductImage:   product.Image,
				Quantity:       item.Quantity,
				UnitPrice:      unitPrice,
				DeliveryStatus: model.DeliveryPending,
			})
		}

		breakdown := s.calculator.Price(lines, order.CouponCode, shipping)
		for i, detail := range order.Details {
			detail.TotalPrice = breakdown.LineTotals[i]
		}
		order.OrderAmount = breakdown.Subtotal
		order.TaxAmount = breakdown.Tax
		order.ShippingCost = breakdown.Shipping
		order.DiscountAmount = breakdown.Discount
		order.TotalAmount = breakdown.Total

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return order, customer, nil
}

// enqueueConfirmation never fails the request: the order is already committed.
func (s *orderServiceImpl) enqueueConfirmation(ctx context.Context, order *model.Order, customer *model.Customer) {
	if s.notifications == nil {
		return
	}

	err := s.notifications.Enqueue(ctx, queue.Job{
		OrderID:        order.ID,
		RecipientEmail: customer.Email,
		Template:       queue.TemplateOrderConfirmation,
	})
	if err != nil {
		log.WithError(err).WithField("order_id", order.ID).Error("enqueue order confirmation")
	}
}

func (s *orderServiceImpl) Get(ctx context.Context, orderID string, requester Requester) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(order.CustomerID) {
		return nil, apperror.Forbidden("order %s belongs to another customer", orderID)
	}
	return order, nil
}

func (s *orderServiceImpl) ListByCustomer(ctx context.Context, customerID string, page repository.Page) ([]*model.Order, error) {
	orders, err := s.orderRepo.List(ctx, repository.OrderFilter{CustomerID: customerID, Page: page})
	if err != nil {
		return nil, fmt.Errorf("list orders of customer %s: %w", customerID, err)
	}
	return orders, nil
}

func (s *orderServiceImpl) ListAll(ctx context.Context, filter repository.OrderFilter) ([]*model.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.Validation("unknown order status %q", filter.Status)
	}
	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *orderServiceImpl) Stats(ctx context.Context) (*repository.OrderStats, error) {
	return s.orderRepo.Stats(ctx, recentOrdersInStats)
}

// Cancel releases every reserved line back to inventory in the same
// transaction that moves the order to cancelled.
func (s *orderServiceImpl) Cancel(ctx context.Context, orderID string, requester Requester) (*model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !requester.CanAccess(order.CustomerID) {
			return apperror.Forbidden("order %s belongs to another customer", orderID)
		}

		if err := s.cancelLocked(ctx, tx, order); err != nil {
			return err
		}
		return s.orderRepo.Save(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(model.OrderStatusCancelled)).Inc()
	log.WithField("order_id", orderID).Info("order cancelled")

	return s.orderRepo.FindByID(ctx, orderID)
}

// cancelLocked mutates a row-locked order. The caller saves it.
func (s *orderServiceImpl) cancelLocked(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if !order.Status.Cancellable() {
		return apperror.InvalidTransition("order", string(order.Status), string(model.OrderStatusCancelled))
	}

	for _, detail := range order.Details {
		if err := s.inventoryRepo.Release(ctx, tx, detail.ProductID, detail.Quantity); err != nil {
			return fmt.Errorf("release stock for order %s: %w", order.ID, err)
		}
	}

	if err := s.orderRepo.UpdateDeliveryStatus(ctx, tx, order.ID, model.DeliveryCancelled); err != nil {
		return fmt.Errorf("cancel order lines: %w", err)
	}
	// open intents can no longer be confirmed; a capture that still lands is
	// recorded by the payment service and left for refund
	if err := s.paymentRepo.CancelOpen(ctx, tx, order.ID); err != nil {
		return fmt.Errorf("cancel open payments: %w", err)
	}

	order.Status = model.OrderStatusCancelled
	if order.CancelledAt == nil {
		now := s.now()
		order.CancelledAt = &now
	}
	if order.PaymentStatus == model.OrderPaymentUnpaid {
		order.PaymentStatus = model.OrderPaymentCancelled
	}

	return nil
}

// UpdateStatus applies whichever of status, payment status and notes are
// set. Repeating the current status is a no-op.
func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID string, in UpdateStatusInput) (*model.Order, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperror.Validation("unknown order status %q", *in.Status)
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.Valid() {
		return nil, apperror.Validation("unknown payment status %q", *in.PaymentStatus)
	}

	var changedTo model.OrderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if in.Status != nil && *in.Status != order.Status {
			if err := s.transitionLocked(ctx, tx, order, *in.Status); err != nil {
				return err
			}
			changedTo = order.Status
		}

		if in.PaymentStatus != nil && *in.PaymentStatus != order.PaymentStatus {
			if !order.PaymentStatus.CanTransitionTo(*in.PaymentStatus) {
				return apperror.InvalidTransition("order payment status", string(order.PaymentStatus), string(*in.PaymentStatus))
			}
			order.PaymentStatus = *in.PaymentStatus
		}

		if in.AdminNotes != nil {
			order.AdminNotes = *in.AdminNotes
		}

		return s.orderRepo.Save(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if changedTo != "" {
		metrics.OrdersTotal.WithLabelValues(string(changedTo)).Inc()
		log.WithFields(log.Fields{
			"order_id": orderID,
			"status":   changedTo,
		}).Info("order status updated")
	}

	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *orderServiceImpl) transitionLocked(ctx context.Context, tx *gorm.DB, order *model.Order, next model.OrderStatus) error {
	if next == model.OrderStatusCancelled {
		return s.cancelLocked(ctx, tx, order)
	}

	if !order.Status.CanTransitionTo(next) {
		return apperror.InvalidTransition("order", string(order.Status), string(next))
	}
	order.Status = next

	now := s.now()
	switch next {
	case model.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case model.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	}

	if delivery, ok := model.DeliveryStatusFor(next); ok {
		if err := s.orderRepo.UpdateDeliveryStatus(ctx, tx, order.ID, delivery); err != nil {
			return fmt.Errorf("update order lines: %w", err)
		}
	}

	return nil
}
