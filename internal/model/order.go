package model

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// orderTransitions is the order-status state machine. Statuses without an
// entry are absorbing.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

// OrderPaymentStatus is the payment axis of an order, independent of its status.
type OrderPaymentStatus string

const (
	OrderPaymentUnpaid    OrderPaymentStatus = "unpaid"
	OrderPaymentPartial   OrderPaymentStatus = "partial"
	OrderPaymentPaid      OrderPaymentStatus = "paid"
	OrderPaymentCancelled OrderPaymentStatus = "cancelled"
)

var orderPaymentTransitions = map[OrderPaymentStatus][]OrderPaymentStatus{
	OrderPaymentUnpaid:  {OrderPaymentPartial, OrderPaymentPaid, OrderPaymentCancelled},
	OrderPaymentPartial: {OrderPaymentPaid, OrderPaymentCancelled},
}

func (s OrderPaymentStatus) Valid() bool {
	switch s {
	case OrderPaymentUnpaid, OrderPaymentPartial, OrderPaymentPaid, OrderPaymentCancelled:
		return true
	}
	return false
}

func (s OrderPaymentStatus) CanTransitionTo(next OrderPaymentStatus) bool {
	for _, allowed := range orderPaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryShipped   DeliveryStatus = "shipped"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// DeliveryStatusFor returns the line item annotation matching an order status,
// and false when the order status does not change line delivery.
func DeliveryStatusFor(s OrderStatus) (DeliveryStatus, bool) {
	switch s {
	case OrderStatusShipped:
		return DeliveryShipped, true
	case OrderStatusDelivered:
		return DeliveryDelivered, true
	case OrderStatusCancelled:
		return DeliveryCancelled, true
	}
	return "", false
}
