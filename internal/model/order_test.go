package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusConfirmed},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusConfirmed, OrderStatusPaid},
		{OrderStatusConfirmed, OrderStatusCancelled},
		{OrderStatusPaid, OrderStatusProcessing},
		{OrderStatusPaid, OrderStatusRefunded},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusDelivered},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusCancelled},
		{OrderStatusDelivered, OrderStatusRefunded},
		{OrderStatusCancelled, OrderStatusPending},
		{OrderStatusRefunded, OrderStatusPaid},
		{OrderStatusPaid, OrderStatusConfirmed},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatusTerminalAndCancellable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, OrderStatusPending.IsTerminal())

	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusConfirmed.Cancellable())
	assert.False(t, OrderStatusPaid.Cancellable())
	assert.False(t, OrderStatusShipped.Cancellable())

	assert.False(t, OrderStatus("archived").Valid())
}

func TestOrderPaymentStatusTransitions(t *testing.T) {
	assert.True(t, OrderPaymentUnpaid.CanTransitionTo(OrderPaymentPartial))
	assert.True(t, OrderPaymentUnpaid.CanTransitionTo(OrderPaymentPaid))
	assert.True(t, OrderPaymentPartial.CanTransitionTo(OrderPaymentPaid))
	assert.True(t, OrderPaymentPartial.CanTransitionTo(OrderPaymentCancelled))
	assert.False(t, OrderPaymentPaid.CanTransitionTo(OrderPaymentUnpaid))
	assert.False(t, OrderPaymentCancelled.CanTransitionTo(OrderPaymentPaid))
}

func TestDeliveryStatusFor(t *testing.T) {
	ds, ok := DeliveryStatusFor(OrderStatusShipped)
	assert.True(t, ok)
	assert.Equal(t, DeliveryShipped, ds)

	_, ok = DeliveryStatusFor(OrderStatusProcessing)
	assert.False(t, ok)
}
