package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/client"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	err error
}

func (v stubVerifier) VerifyWebhookSignature(context.Context, http.Header, []byte) error {
	return v.err
}

type paymentFixture struct {
	*testEnv
	verifier *stubVerifier
	service  PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	env := newTestEnv(t)

	verifier := &stubVerifier{}
	return &paymentFixture{
		testEnv:  env,
		verifier: verifier,
		service:  NewPaymentService(env.db, env.gateways, verifier, env.orders, env.payments, env.webhookEvents),
	}
}

func (f *paymentFixture) intent(t *testing.T, method model.PaymentMethod) (*model.Order, *model.Payment) {
	t.Helper()
	order := f.placeStandardOrder(t, method)
	payment, err := f.service.CreateIntent(context.Background(), order.ID, CustomerRequester(testCustomerID))
	require.NoError(t, err)
	return order, payment
}

func (f *paymentFixture) order(t *testing.T, orderID string) *model.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return order
}

func (f *paymentFixture) payment(t *testing.T, paymentID string) *model.Payment {
	t.Helper()
	payment, err := f.payments.FindByID(context.Background(), paymentID)
	require.NoError(t, err)
	return payment
}

func TestPaymentConfirmAndRefund(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)

	order, payment := f.intent(t, model.PaymentMethodCard)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assertMoney(t, "152.99", payment.Amount)
	assert.Equal(t, "card-gateway", payment.Gateway)
	assert.Equal(t, "token-"+payment.ID, payment.ClientToken)
	assert.Equal(t, "card-gateway-"+payment.ID, payment.GatewayHandle)

	confirmed, err := f.service.Confirm(ctx, payment.ID, "nonce-1", buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, confirmed.Status)
	assert.Equal(t, "txn-"+payment.GatewayHandle, confirmed.TransactionRef)
	require.NotNil(t, confirmed.ProcessedAt)

	paid := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
	assert.Equal(t, model.OrderPaymentPaid, paid.PaymentStatus)
	assertMoney(t, "152.99", paid.PaidAmount)

	refunded, err := f.service.Refund(ctx, payment.ID, RefundInput{Reason: "changed mind"}, buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)
	assertMoney(t, "152.99", refunded.RefundAmount)
	assert.Equal(t, "changed mind", refunded.RefundReason)
	require.NotNil(t, refunded.RefundedAt)

	require.Len(t, f.card.refunds, 1)
	assert.Equal(t, confirmed.TransactionRef, f.card.refunds[0].TransactionRef)

	final := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusRefunded, final.Status)
	assertMoney(t, "0", final.PaidAmount)

	stats, err := f.orderService.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ByStatus[model.OrderStatusRefunded])
}

func TestPaymentConfirmIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)

	_, err := f.service.Confirm(ctx, payment.ID, "nonce-1", buyer)
	require.NoError(t, err)
	again, err := f.service.Confirm(ctx, payment.ID, "nonce-1", buyer)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusCompleted, again.Status)
	assert.Equal(t, 1, f.card.captureCount())
	assertMoney(t, "152.99", f.order(t, order.ID).PaidAmount)
}

func TestPaymentConfirmTimeoutLeavesPaymentPending(t *testing.T) {
	f := newPaymentFixture(t)
	order, payment := f.intent(t, model.PaymentMethodCard)
	f.card.captureErr = apperror.PaymentGateway(f.card.name, apperror.GatewayTimeout, context.DeadlineExceeded)

	_, err := f.service.Confirm(context.Background(), payment.ID, "nonce-1", CustomerRequester(testCustomerID))
	require.Error(t, err)
	failure, ok := apperror.GatewayFailureOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.GatewayTimeout, failure)

	stored := f.payment(t, payment.ID)
	assert.Equal(t, model.PaymentStatusPending, stored.Status)
	assert.Zero(t, stored.RetryCount)
	assert.Equal(t, model.OrderStatusPending, f.order(t, order.ID).Status)
}

func TestPaymentConfirmRejectedMarksFailedAndAllowsRetry(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)

	f.card.captureResult = &client.CaptureResult{Outcome: client.CaptureRejected, Reason: "card declined"}
	_, err := f.service.Confirm(ctx, payment.ID, "nonce-1", buyer)
	require.Error(t, err)
	failure, _ := apperror.GatewayFailureOf(err)
	assert.Equal(t, apperror.GatewayRejected, failure)

	stored := f.payment(t, payment.ID)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "card declined", stored.FailureReason)

	f.card.captureResult = nil
	confirmed, err := f.service.Confirm(ctx, payment.ID, "nonce-2", buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, confirmed.Status)
	assert.Empty(t, confirmed.FailureReason)
	assert.Equal(t, model.OrderStatusPaid, f.order(t, order.ID).Status)
}

func TestPaymentConfirmGatewayRejectionError(t *testing.T) {
	f := newPaymentFixture(t)
	_, payment := f.intent(t, model.PaymentMethodCard)
	f.card.captureErr = apperror.PaymentGateway(f.card.name, apperror.GatewayRejected, errors.New("invalid nonce"))

	_, err := f.service.Confirm(context.Background(), payment.ID, "bad", CustomerRequester(testCustomerID))
	assert.True(t, apperror.Is(err, apperror.KindPaymentGateway))

	stored := f.payment(t, payment.ID)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestPaymentConfirmPendingOutcome(t *testing.T) {
	f := newPaymentFixture(t)
	_, payment := f.intent(t, model.PaymentMethodPaypal)
	f.paypal.captureResult = &client.CaptureResult{Outcome: client.CapturePending, Reason: "ORDER_NOT_APPROVED"}

	got, err := f.service.Confirm(context.Background(), payment.ID, "", CustomerRequester(testCustomerID))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, got.Status)
	assert.Equal(t, model.PaymentStatusPending, f.payment(t, payment.ID).Status)
}

func TestPaymentRefundBounds(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	_, payment := f.intent(t, model.PaymentMethodCard)

	_, err := f.service.Refund(ctx, payment.ID, RefundInput{}, buyer)
	assert.True(t, apperror.Is(err, apperror.KindInvalidTransition), "pending payments cannot be refunded")

	_, err = f.service.Confirm(ctx, payment.ID, "nonce", buyer)
	require.NoError(t, err)

	tooMuch := dec("200.00")
	_, err = f.service.Refund(ctx, payment.ID, RefundInput{Amount: &tooMuch}, buyer)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	zero := dec("0")
	_, err = f.service.Refund(ctx, payment.ID, RefundInput{Amount: &zero}, buyer)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	assert.Empty(t, f.card.refunds)

	partial := dec("50.00")
	refunded, err := f.service.Refund(ctx, payment.ID, RefundInput{Amount: &partial}, buyer)
	require.NoError(t, err)
	assertMoney(t, "50.00", refunded.RefundAmount)
	assertMoney(t, "102.99", f.order(t, refunded.OrderID).PaidAmount)
}

func TestPaymentRefundRequiresPaidOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)

	_, err := f.service.Confirm(ctx, payment.ID, "nonce", buyer)
	require.NoError(t, err)

	processing := model.OrderStatusProcessing
	_, err = f.orderService.UpdateStatus(ctx, order.ID, UpdateStatusInput{Status: &processing})
	require.NoError(t, err)

	_, err = f.service.Refund(ctx, payment.ID, RefundInput{}, buyer)
	assert.True(t, apperror.Is(err, apperror.KindInvalidTransition))
	assert.Empty(t, f.card.refunds)
	assert.Equal(t, model.PaymentStatusCompleted, f.payment(t, payment.ID).Status)
}

func TestPaymentRefundGatewayFailureChangesNothing(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)
	_, err := f.service.Confirm(ctx, payment.ID, "nonce", buyer)
	require.NoError(t, err)

	f.card.refundErr = apperror.PaymentGateway(f.card.name, apperror.GatewayUnavailable, errors.New("503"))
	_, err = f.service.Refund(ctx, payment.ID, RefundInput{}, buyer)
	assert.True(t, apperror.Is(err, apperror.KindPaymentGateway))

	assert.Equal(t, model.PaymentStatusCompleted, f.payment(t, payment.ID).Status)
	assert.Equal(t, model.OrderStatusPaid, f.order(t, order.ID).Status)
}

func TestPaymentAccessAndPreconditions(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	stranger := CustomerRequester(otherCustomerID)

	order, payment := f.intent(t, model.PaymentMethodCard)

	_, err := f.service.CreateIntent(ctx, order.ID, stranger)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	_, err = f.service.Confirm(ctx, payment.ID, "nonce", stranger)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	_, err = f.service.Get(ctx, payment.ID, stranger)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	got, err := f.service.Get(ctx, payment.ID, AdminRequester())
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = f.orderService.Cancel(ctx, order.ID, AdminRequester())
	require.NoError(t, err)
	_, err = f.service.CreateIntent(ctx, order.ID, CustomerRequester(testCustomerID))
	assert.True(t, apperror.Is(err, apperror.KindInvalidTransition))
	_, err = f.service.Confirm(ctx, payment.ID, "nonce", CustomerRequester(testCustomerID))
	assert.True(t, apperror.Is(err, apperror.KindInvalidTransition))
	assert.Zero(t, f.card.captureCount())

	listed, err := f.service.ListByCustomer(ctx, testCustomerID, repository.Page{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestOfflineReceiptIsRecordedByAdminOnly(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCashOnDelivery)
	assert.Equal(t, client.OfflineGatewayName, payment.Gateway)

	_, err := f.service.Confirm(ctx, payment.ID, "anything-i-like", buyer)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	assert.Equal(t, model.PaymentStatusPending, f.payment(t, payment.ID).Status)
	unpaid := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusPending, unpaid.Status)
	assert.Equal(t, model.OrderPaymentUnpaid, unpaid.PaymentStatus)
	assertMoney(t, "0", unpaid.PaidAmount)

	waiting, err := f.service.Confirm(ctx, payment.ID, "", buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, waiting.Status)

	settled, err := f.service.Confirm(ctx, payment.ID, "RCPT-9", AdminRequester())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, settled.Status)
	assert.Equal(t, "RCPT-9", settled.TransactionRef)
	assert.Equal(t, model.OrderStatusPaid, f.order(t, order.ID).Status)
}

func TestCancelOrderCancelsOpenPayments(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)

	_, err := f.orderService.Cancel(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCancelled, f.payment(t, payment.ID).Status)

	_, err = f.service.Confirm(ctx, payment.ID, "nonce", buyer)
	assert.True(t, apperror.Is(err, apperror.KindInvalidTransition))
	assert.Zero(t, f.card.captureCount())
}

func TestCaptureAfterCancelIsRecordedAndRefundable(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order, payment := f.intent(t, model.PaymentMethodPaypal)

	_, err := f.orderService.Cancel(ctx, order.ID, CustomerRequester(testCustomerID))
	require.NoError(t, err)

	body := captureWebhook("WH-LATE", "PAYMENT.CAPTURE.COMPLETED", payment.GatewayHandle, "CAPTURE-LATE")
	require.NoError(t, f.service.HandlePaypalWebhook(ctx, http.Header{}, body))

	captured := f.payment(t, payment.ID)
	assert.Equal(t, model.PaymentStatusCompleted, captured.Status)
	assert.Equal(t, "CAPTURE-LATE", captured.TransactionRef)
	held := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, held.Status)
	assert.Equal(t, model.OrderPaymentCancelled, held.PaymentStatus)
	assertMoney(t, "152.99", held.PaidAmount)

	refunded, err := f.service.Refund(ctx, payment.ID, RefundInput{Reason: "order cancelled"}, AdminRequester())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)
	assertMoney(t, "152.99", refunded.RefundAmount)
	require.Len(t, f.paypal.refunds, 1)
	assert.Equal(t, "CAPTURE-LATE", f.paypal.refunds[0].TransactionRef)

	final := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, final.Status)
	assertMoney(t, "0", final.PaidAmount)
}

func TestCancelDuringCaptureLeavesRefundablePayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)

	f.card.onCapture = func() {
		_, err := f.orderService.Cancel(ctx, order.ID, AdminRequester())
		require.NoError(t, err)
	}

	captured, err := f.service.Confirm(ctx, payment.ID, "nonce", buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, captured.Status)

	held := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusCancelled, held.Status)
	assertMoney(t, "152.99", held.PaidAmount)

	_, err = f.service.Refund(ctx, payment.ID, RefundInput{}, AdminRequester())
	require.NoError(t, err)
	assertMoney(t, "0", f.order(t, order.ID).PaidAmount)
	assert.Equal(t, model.OrderStatusCancelled, f.order(t, order.ID).Status)
}

func TestCreateIntentForFullyPaidOrder(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	buyer := CustomerRequester(testCustomerID)
	order, payment := f.intent(t, model.PaymentMethodCard)
	_, err := f.service.Confirm(ctx, payment.ID, "nonce", buyer)
	require.NoError(t, err)

	_, err = f.service.CreateIntent(ctx, order.ID, buyer)
	assert.True(t, apperror.Is(err, apperror.KindInvalidTransition))
}

func captureWebhook(eventID, eventType, handle, captureID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"event_type": %q,
		"create_time": "2026-03-01T12:00:00Z",
		"resource": {
			"id": %q,
			"status": "COMPLETED",
			"amount": {"currency_code": "USD", "value": "152.99"},
			"supplementary_data": {"related_ids": {"order_id": %q}}
		}
	}`, eventID, eventType, captureID, handle))
}

func TestPaypalWebhookCompletesPaymentOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order, payment := f.intent(t, model.PaymentMethodPaypal)

	body := captureWebhook("WH-1", "PAYMENT.CAPTURE.COMPLETED", payment.GatewayHandle, "CAPTURE-1")
	require.NoError(t, f.service.HandlePaypalWebhook(ctx, http.Header{}, body))
	require.NoError(t, f.service.HandlePaypalWebhook(ctx, http.Header{}, body))

	stored := f.payment(t, payment.ID)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "CAPTURE-1", stored.TransactionRef)

	paid := f.order(t, order.ID)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
	assertMoney(t, "152.99", paid.PaidAmount)

	seen, err := f.webhookEvents.Exists(ctx, "WH-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// a different delivery for the same capture is also absorbed
	other := captureWebhook("WH-2", "PAYMENT.CAPTURE.COMPLETED", payment.GatewayHandle, "CAPTURE-1")
	require.NoError(t, f.service.HandlePaypalWebhook(ctx, http.Header{}, other))
	assertMoney(t, "152.99", f.order(t, order.ID).PaidAmount)
}

func TestPaypalWebhookDeniedCaptureFailsPayment(t *testing.T) {
	f := newPaymentFixture(t)
	_, payment := f.intent(t, model.PaymentMethodPaypal)

	body := captureWebhook("WH-3", "PAYMENT.CAPTURE.DENIED", payment.GatewayHandle, "CAPTURE-3")
	require.NoError(t, f.service.HandlePaypalWebhook(context.Background(), http.Header{}, body))

	stored := f.payment(t, payment.ID)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestPaypalWebhookRejectsBadInput(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.verifier.err = apperror.Unauthorized("invalid webhook signature")
	err := f.service.HandlePaypalWebhook(ctx, http.Header{}, captureWebhook("WH-4", "PAYMENT.CAPTURE.COMPLETED", "x", "y"))
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))

	f.verifier.err = nil
	err = f.service.HandlePaypalWebhook(ctx, http.Header{}, []byte("not json"))
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	err = f.service.HandlePaypalWebhook(ctx, http.Header{}, captureWebhook("WH-5", "PAYMENT.CAPTURE.COMPLETED", "unknown-handle", "y"))
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	seen, err := f.webhookEvents.Exists(ctx, "WH-5")
	require.NoError(t, err)
	assert.False(t, seen, "failed deliveries stay retryable")

	require.NoError(t, f.service.HandlePaypalWebhook(ctx, http.Header{}, captureWebhook("WH-6", "CHECKOUT.ORDER.APPROVED", "", "")))
}

func TestConfirmPaypalReturn(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	order, payment := f.intent(t, model.PaymentMethodWallet)

	confirmed, err := f.service.ConfirmPaypalReturn(ctx, payment.GatewayHandle)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, confirmed.Status)
	assert.Equal(t, model.OrderStatusPaid, f.order(t, order.ID).Status)

	_, err = f.service.ConfirmPaypalReturn(ctx, "unknown")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = f.service.ConfirmPaypalReturn(ctx, "")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}
