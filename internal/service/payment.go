package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/client"
	"ecommerce-order-service/internal/metrics"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/pricing"
	"ecommerce-order-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RefundInput struct {
	// Amount defaults to everything not yet refunded.
	Amount *decimal.Decimal
	Reason string
}

// WebhookVerifier checks that a webhook delivery really comes from the gateway.
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error
}

type PaymentService interface {
	CreateIntent(ctx context.Context, orderID string, requester Requester) (*model.Payment, error)
	Confirm(ctx context.Context, paymentID, confirmationRef string, requester Requester) (*model.Payment, error)
	Refund(ctx context.Context, paymentID string, in RefundInput, requester Requester) (*model.Payment, error)
	Get(ctx context.Context, paymentID string, requester Requester) (*model.Payment, error)
	ListByCustomer(ctx context.Context, customerID string, page repository.Page) ([]*model.Payment, error)
	HandlePaypalWebhook(ctx context.Context, headers http.Header, body []byte) error
	ConfirmPaypalReturn(ctx context.Context, paypalOrderID string) (*model.Payment, error)
}

type paymentServiceImpl struct {
	db               *gorm.DB
	gateways         *client.GatewayRegistry
	paypalVerifier   WebhookVerifier
	orderRepo        repository.OrderRepository
	paymentRepo      repository.PaymentRepository
	webhookEventRepo repository.WebhookEventRepository

	now func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	gateways *client.GatewayRegistry,
	paypalVerifier WebhookVerifier,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	webhookEventRepo repository.WebhookEventRepository,
) PaymentService {
	return &paymentServiceImpl{
		db:               db,
		gateways:         gateways,
		paypalVerifier:   paypalVerifier,
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		webhookEventRepo: webhookEventRepo,
		now:              time.Now,
	}
}

func payableStatus(status model.OrderStatus) bool {
	return status == model.OrderStatusPending || status == model.OrderStatusConfirmed
}

// refundableStatus covers paid orders and cancelled orders that still hold a
// capture which landed after the cancel.
func refundableStatus(status model.OrderStatus) bool {
	return status.CanTransitionTo(model.OrderStatusRefunded) || status == model.OrderStatusCancelled
}

// CreateIntent opens a gateway charge for what is still due on the order and
// records a pending payment referencing the gateway handle.
func (s *paymentServiceImpl) CreateIntent(ctx context.Context, orderID string, requester Requester) (*model.Payment, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(order.CustomerID) {
		return nil, apperror.Forbidden("order %s belongs to another customer", orderID)
	}
	if !payableStatus(order.Status) {
		return nil, apperror.InvalidTransition("order", string(order.Status), string(model.OrderStatusPaid))
	}

	due := order.TotalAmount.Sub(order.PaidAmount)
	if !due.IsPositive() {
		return nil, apperror.Validation("order %s has nothing left to pay", orderID)
	}

	gateway, err := s.gateways.ForMethod(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.NewString()
	charge, err := gateway.CreateCharge(ctx, client.ChargeRequest{
		Reference: paymentID,
		Amount:    due,
		Currency:  order.Currency,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"gateway":  gateway.Name(),
		}).Warn("create charge failed")
		return nil, err
	}

	payment := &model.Payment{
		ID:            paymentID,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Amount:        due,
		Currency:      order.Currency,
		Method:        order.PaymentMethod,
		Status:        model.PaymentStatusPending,
		Gateway:       gateway.Name(),
		GatewayHandle: charge.Handle,
		RefundAmount:  decimal.Zero,
	}
	if err := s.paymentRepo.Create(ctx, s.db, payment); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}
	payment.ClientToken = charge.ClientToken

	metrics.PaymentsTotal.WithLabelValues(string(payment.Status)).Inc()
	log.WithFields(log.Fields{
		"order_id":   orderID,
		"payment_id": payment.ID,
		"gateway":    payment.Gateway,
		"amount":     due.StringFixed(2),
	}).Info("payment intent created")

	return payment, nil
}

// Confirm asks the gateway to capture the payment. A timeout leaves the
// payment untouched so a later confirm or webhook can reconcile it.
func (s *paymentServiceImpl) Confirm(ctx context.Context, paymentID, confirmationRef string, requester Requester) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(payment.CustomerID) {
		return nil, apperror.Forbidden("payment %s belongs to another customer", paymentID)
	}
	// an offline receipt is the proof of payment, the payer cannot supply it
	if payment.Gateway == client.OfflineGatewayName && confirmationRef != "" && !requester.Admin {
		return nil, apperror.Forbidden("payment %s can only be settled by an admin or courier", paymentID)
	}

	if payment.Status == model.PaymentStatusCompleted {
		return payment, nil
	}
	if !payment.Status.Confirmable() {
		return nil, apperror.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusCompleted))
	}

	order, err := s.orderRepo.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !payableStatus(order.Status) {
		return nil, apperror.InvalidTransition("order", string(order.Status), string(model.OrderStatusPaid))
	}

	gateway, err := s.gateways.ByName(payment.Gateway)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"payment_id": paymentID,
		"order_id":   payment.OrderID,
		"gateway":    payment.Gateway,
	})

	result, err := gateway.Capture(ctx, client.CaptureRequest{
		Handle:          payment.GatewayHandle,
		ConfirmationRef: confirmationRef,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
	})
	if err != nil {
		if failure, _ := apperror.GatewayFailureOf(err); failure == apperror.GatewayRejected {
			if markErr := s.markFailed(ctx, paymentID, err.Error()); markErr != nil {
				logger.WithError(markErr).Error("record rejected payment")
			}
		}
		logger.WithError(err).Warn("payment capture failed")
		return nil, err
	}

	switch result.Outcome {
	case client.CaptureCaptured:
		return s.completePayment(ctx, paymentID, result.TransactionRef)
	case client.CaptureRejected:
		if err := s.markFailed(ctx, paymentID, result.Reason); err != nil {
			return nil, err
		}
		return nil, apperror.PaymentGateway(payment.Gateway, apperror.GatewayRejected, errors.New(result.Reason))
	default:
		logger.WithField("reason", result.Reason).Info("payment not captured yet")
		return payment, nil
	}
}

// completePayment marks a captured payment completed and credits the order.
// A fully paid order advances pending -> confirmed -> paid. The gateway has
// already moved the money, so a capture for a cancelled payment is still
// recorded and the order keeps its status until the payment is refunded.
func (s *paymentServiceImpl) completePayment(ctx context.Context, paymentID, transactionRef string) (*model.Payment, error) {
	var payment *model.Payment
	credited := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentStatusCompleted {
			return nil
		}
		if !payment.Status.Confirmable() && payment.Status != model.PaymentStatusCancelled {
			return apperror.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusCompleted))
		}

		now := s.now()
		payment.Status = model.PaymentStatusCompleted
		payment.ProcessedAt = &now
		payment.TransactionRef = transactionRef
		payment.FailureReason = ""
		if err := s.paymentRepo.Save(ctx, tx, payment); err != nil {
			return fmt.Errorf("store payment: %w", err)
		}

		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, payment.OrderID)
		if err != nil {
			return err
		}

		order.PaidAmount = order.PaidAmount.Add(payment.Amount)
		credited = true

		if !payableStatus(order.Status) && order.Status != model.OrderStatusPaid {
			log.WithFields(log.Fields{
				"payment_id": paymentID,
				"order_id":   order.ID,
				"status":     order.Status,
			}).Warn("payment captured for an order that is no longer payable, refund required")
			return s.orderRepo.Save(ctx, tx, order)
		}

		fullyPaid := order.PaidAmount.GreaterThanOrEqual(order.TotalAmount)

		target := model.OrderPaymentPartial
		if fullyPaid {
			target = model.OrderPaymentPaid
		}
		if order.PaymentStatus.CanTransitionTo(target) {
			order.PaymentStatus = target
		}

		if fullyPaid {
			if order.Status == model.OrderStatusPending {
				order.Status = model.OrderStatusConfirmed
			}
			if order.Status == model.OrderStatusConfirmed {
				order.Status = model.OrderStatusPaid
			}
		}
		return s.orderRepo.Save(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if credited {
		metrics.PaymentsTotal.WithLabelValues(string(model.PaymentStatusCompleted)).Inc()
		metrics.PaymentAmount.Observe(payment.Amount.InexactFloat64())
		log.WithFields(log.Fields{
			"payment_id": paymentID,
			"order_id":   payment.OrderID,
		}).Info("payment completed")
	}

	return payment, nil
}

func (s *paymentServiceImpl) markFailed(ctx context.Context, paymentID, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if !payment.Status.Confirmable() {
			return nil
		}

		payment.Status = model.PaymentStatusFailed
		payment.RetryCount++
		payment.FailureReason = reason
		if err := s.paymentRepo.Save(ctx, tx, payment); err != nil {
			return fmt.Errorf("store payment: %w", err)
		}

		metrics.PaymentsTotal.WithLabelValues(string(model.PaymentStatusFailed)).Inc()
		return nil
	})
}

// Refund refunds a completed payment through its gateway, then moves the
// payment to refunded and a paid order to refunded. A cancelled order keeps
// its status.
func (s *paymentServiceImpl) Refund(ctx context.Context, paymentID string, in RefundInput, requester Requester) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(payment.CustomerID) {
		return nil, apperror.Forbidden("payment %s belongs to another customer", paymentID)
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, apperror.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusRefunded))
	}

	refundable := payment.Amount.Sub(payment.RefundAmount)
	amount := refundable
	if in.Amount != nil {
		amount = pricing.Round(*in.Amount)
	}
	if !amount.IsPositive() {
		return nil, apperror.Validation("refund amount must be positive")
	}
	if amount.GreaterThan(refundable) {
		return nil, apperror.Validation("refund amount %s exceeds refundable %s", amount.StringFixed(2), refundable.StringFixed(2))
	}

	order, err := s.orderRepo.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !refundableStatus(order.Status) {
		return nil, apperror.InvalidTransition("order", string(order.Status), string(model.OrderStatusRefunded))
	}

	gateway, err := s.gateways.ByName(payment.Gateway)
	if err != nil {
		return nil, err
	}

	refund, err := gateway.Refund(ctx, client.RefundRequest{
		TransactionRef: payment.TransactionRef,
		Amount:         amount,
		Currency:       payment.Currency,
		Reason:         in.Reason,
	})
	if err != nil {
		log.WithError(err).WithField("payment_id", paymentID).Warn("gateway refund failed")
		return nil, err
	}

	orderRefunded := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != model.PaymentStatusCompleted {
			return apperror.InvalidTransition("payment", string(payment.Status), string(model.PaymentStatusRefunded))
		}

		now := s.now()
		payment.Status = model.PaymentStatusRefunded
		payment.RefundAmount = payment.RefundAmount.Add(amount)
		payment.RefundReason = in.Reason
		payment.RefundedAt = &now
		if err := s.paymentRepo.Save(ctx, tx, payment); err != nil {
			return fmt.Errorf("store payment: %w", err)
		}

		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, payment.OrderID)
		if err != nil {
			return err
		}
		if !refundableStatus(order.Status) {
			return apperror.InvalidTransition("order", string(order.Status), string(model.OrderStatusRefunded))
		}
		if order.Status != model.OrderStatusCancelled {
			order.Status = model.OrderStatusRefunded
			orderRefunded = true
		}
		order.PaidAmount = decimal.Max(order.PaidAmount.Sub(amount), decimal.Zero)

		return s.orderRepo.Save(ctx, tx, order)
	})
	if err != nil {
		// the gateway already moved the money; this needs a human
		log.WithError(err).WithFields(log.Fields{
			"payment_id": paymentID,
			"refund_ref": refund.RefundRef,
		}).Error("refund succeeded at gateway but could not be recorded")
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(string(model.PaymentStatusRefunded)).Inc()
	if orderRefunded {
		metrics.OrdersTotal.WithLabelValues(string(model.OrderStatusRefunded)).Inc()
	}
	log.WithFields(log.Fields{
		"payment_id": paymentID,
		"order_id":   payment.OrderID,
		"amount":     amount.StringFixed(2),
		"refund_ref": refund.RefundRef,
	}).Info("payment refunded")

	return payment, nil
}

// ConfirmPaypalReturn captures the payment whose PayPal order the buyer just
// approved. PayPal redirects the buyer back with the order id as token.
func (s *paymentServiceImpl) ConfirmPaypalReturn(ctx context.Context, paypalOrderID string) (*model.Payment, error) {
	if paypalOrderID == "" {
		return nil, apperror.Validation("missing paypal order token")
	}
	payment, err := s.paymentRepo.FindByGatewayHandle(ctx, client.PaypalGatewayName, paypalOrderID)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, payment.ID, "", AdminRequester())
}

func (s *paymentServiceImpl) Get(ctx context.Context, paymentID string, requester Requester) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(payment.CustomerID) {
		return nil, apperror.Forbidden("payment %s belongs to another customer", paymentID)
	}
	return payment, nil
}

func (s *paymentServiceImpl) ListByCustomer(ctx context.Context, customerID string, page repository.Page) ([]*model.Payment, error) {
	payments, err := s.paymentRepo.ListByCustomer(ctx, customerID, page)
	if err != nil {
		return nil, fmt.Errorf("list payments of customer %s: %w", customerID, err)
	}
	return payments, nil
}

// HandlePaypalWebhook verifies and dedupes a PayPal delivery. A completed
// capture confirms the referenced payment through the normal completion
// path. Events are only recorded as processed once handled, so a failed
// delivery is retried by PayPal.
func (s *paymentServiceImpl) HandlePaypalWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if s.paypalVerifier == nil {
		return apperror.NotFound("paypal webhook is not configured")
	}
	if err := s.paypalVerifier.VerifyWebhookSignature(ctx, headers, body); err != nil {
		return err
	}

	var event model.PayPalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperror.Validation("decode webhook payload: %v", err)
	}
	if event.ID == "" {
		return apperror.Validation("webhook event id is missing")
	}

	logger := log.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
	})

	seen, err := s.webhookEventRepo.Exists(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if seen {
		logger.Info("duplicate webhook event ignored")
		return nil
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		if err := s.handleCaptureCompleted(ctx, &event); err != nil {
			return err
		}
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		if err := s.handleCaptureDenied(ctx, &event); err != nil {
			return err
		}
	default:
		logger.Debug("webhook event ignored")
	}

	err = s.webhookEventRepo.MarkProcessed(ctx, nil, event.ID, event.EventType)
	if apperror.Is(err, apperror.KindConflict) {
		return nil
	}
	return err
}

func (s *paymentServiceImpl) paymentForEvent(ctx context.Context, event *model.PayPalWebhookEvent) (*model.Payment, error) {
	handle := event.Resource.SupplementaryData.RelatedIDs.OrderID
	if handle == "" {
		return nil, apperror.Validation("could not find order_id in webhook payload")
	}
	return s.paymentRepo.FindByGatewayHandle(ctx, client.PaypalGatewayName, handle)
}

func (s *paymentServiceImpl) handleCaptureCompleted(ctx context.Context, event *model.PayPalWebhookEvent) error {
	payment, err := s.paymentForEvent(ctx, event)
	if err != nil {
		return err
	}
	if payment.Status == model.PaymentStatusCompleted {
		return nil
	}

	_, err = s.completePayment(ctx, payment.ID, event.Resource.ID)
	return err
}

func (s *paymentServiceImpl) handleCaptureDenied(ctx context.Context, event *model.PayPalWebhookEvent) error {
	payment, err := s.paymentForEvent(ctx, event)
	if err != nil {
		return err
	}
	return s.markFailed(ctx, payment.ID, "capture "+event.Resource.Status)
}
