package dto

import (
	"time"

	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/repository"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ProductID string           `json:"productId" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type CreateOrderRequest struct {
	Items           []OrderItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string      `json:"paymentMethod" validate:"required,oneof=card paypal wallet cash_on_delivery bank_transfer"`
	ShippingAddress string      `json:"shippingAddress" validate:"required"`
	BillingAddress  string      `json:"billingAddress"`
	CustomerNotes   string      `json:"customerNotes" validate:"max=2000"`
	CouponCode      string      `json:"couponCode" validate:"max=64"`
}

type UpdateOrderStatusRequest struct {
	Status        *string `json:"status" validate:"omitempty,oneof=pending confirmed paid processing shipped delivered cancelled refunded"`
	PaymentStatus *string `json:"paymentStatus" validate:"omitempty,oneof=unpaid partial paid cancelled"`
	AdminNotes    *string `json:"adminNotes"`
}

type CreatePaymentIntentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type ProcessPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	// ConfirmationRef is the braintree nonce, or the offline receipt number.
	ConfirmationRef string `json:"confirmationRef"`
}

type RefundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"max=500"`
}

type ErrorResponse struct {
	StatusCode int            `json:"statusCode"`
	Timestamp  string         `json:"timestamp"`
	Path       string         `json:"path"`
	Error      string         `json:"error"`
	Details    map[string]any `json:"details,omitempty"`
}

type CustomerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type OrderDetailResponse struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName"`
	ProductImage   string `json:"productImage,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unitPrice"`
	TotalPrice     string `json:"totalPrice"`
	DeliveryStatus string `json:"deliveryStatus"`
}

type OrderResponse struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	CustomerID      string                `json:"customerId"`
	Customer        *CustomerResponse     `json:"customer,omitempty"`
	Status          string                `json:"status"`
	PaymentStatus   string                `json:"paymentStatus"`
	PaymentMethod   string                `json:"paymentMethod"`
	Currency        string                `json:"currency"`
	OrderAmount     string                `json:"orderAmount"`
	TaxAmount       string                `json:"taxAmount"`
	ShippingCost    string                `json:"shippingCost"`
	DiscountAmount  string                `json:"discountAmount"`
	TotalAmount     string                `json:"totalAmount"`
	PaidAmount      string                `json:"paidAmount"`
	CouponCode      string                `json:"couponCode,omitempty"`
	ShippingAddress string                `json:"shippingAddress"`
	BillingAddress  string                `json:"billingAddress,omitempty"`
	CustomerNotes   string                `json:"customerNotes,omitempty"`
	AdminNotes      string                `json:"adminNotes,omitempty"`
	ShippedAt       *time.Time            `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time            `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time            `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	Items           []OrderDetailResponse `json:"items"`
}

type PaymentResponse struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"orderId"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	Gateway        string     `json:"gateway"`
	TransactionRef string     `json:"transactionId,omitempty"`
	ClientToken    string     `json:"clientToken,omitempty"`
	RefundAmount   string     `json:"refundAmount"`
	RefundReason   string     `json:"refundReason,omitempty"`
	FailureReason  string     `json:"failureReason,omitempty"`
	RetryCount     int        `json:"retryCount"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	RefundedAt     *time.Time `json:"refundedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type OrderStatsResponse struct {
	TotalOrders  int64            `json:"totalOrders"`
	TotalRevenue string           `json:"totalRevenue"`
	ByStatus     map[string]int64 `json:"byStatus"`
	RecentOrders []OrderResponse  `json:"recentOrders"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func NewOrderResponse(o *model.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentMethod:   string(o.PaymentMethod),
		Currency:        o.Currency,
		OrderAmount:     money(o.OrderAmount),
		TaxAmount:       money(o.TaxAmount),
		ShippingCost:    money(o.ShippingCost),
		DiscountAmount:  money(o.DiscountAmount),
		TotalAmount:     money(o.TotalAmount),
		PaidAmount:      money(o.PaidAmount),
		CouponCode:      o.CouponCode,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		CustomerNotes:   o.CustomerNotes,
		AdminNotes:      o.AdminNotes,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           make([]OrderDetailResponse, 0, len(o.Details)),
	}

	if o.Customer != nil {
		resp.Customer = &CustomerResponse{
			ID:    o.Customer.ID,
			Email: o.Customer.Email,
			Name:  o.Customer.Name,
		}
	}

	for _, d := range o.Details {
		resp.Items = append(resp.Items, OrderDetailResponse{
			ID:             d.ID,
			ProductID:      d.ProductID,
			ProductName:    d.ProductName,
			ProductImage:   d.ProductImage,
			Quantity:       d.Quantity,
			UnitPrice:      money(d.UnitPrice),
			TotalPrice:     money(d.TotalPrice),
			DeliveryStatus: string(d.DeliveryStatus),
		})
	}

	return resp
}

func NewOrderResponses(orders []*model.Order) []OrderResponse {
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, NewOrderResponse(o))
	}
	return resp
}

func NewPaymentResponse(p *model.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         money(p.Amount),
		Currency:       p.Currency,
		Method:         string(p.Method),
		Status:         string(p.Status),
		Gateway:        p.Gateway,
		TransactionRef: p.TransactionRef,
		ClientToken:    p.ClientToken,
		RefundAmount:   money(p.RefundAmount),
		RefundReason:   p.RefundReason,
		FailureReason:  p.FailureReason,
		RetryCount:     p.RetryCount,
		ProcessedAt:    p.ProcessedAt,
		RefundedAt:     p.RefundedAt,
		CreatedAt:      p.CreatedAt,
	}
}

func NewPaymentResponses(payments []*model.Payment) []PaymentResponse {
	resp := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, NewPaymentResponse(p))
	}
	return resp
}

func NewOrderStatsResponse(stats *repository.OrderStats) OrderStatsResponse {
	resp := OrderStatsResponse{
		TotalOrders:  stats.TotalOrders,
		TotalRevenue: money(stats.TotalRevenue),
		ByStatus:     make(map[string]int64, len(stats.ByStatus)),
		RecentOrders: NewOrderResponses(stats.Recent),
	}
	for status, count := range stats.ByStatus {
		resp.ByStatus[string(status)] = count
	}
	return resp
}
