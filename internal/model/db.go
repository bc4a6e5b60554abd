package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        string `gorm:"primaryKey;size:64;not null"`
	Email     string `gorm:"size:255;uniqueIndex;not null"`
	Name      string `gorm:"size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product belongs to the catalog. Stock is the only column written by the
// order workflow and only through the inventory ledger.
type Product struct {
	ID             string          `gorm:"primaryKey;size:64;not null"`
	Name           string          `gorm:"size:128;not null"`
	Image          string          `gorm:"size:255"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Stock          int             `gorm:"not null;default:0;check:chk_products_stock,stock >= 0"`
	IsShippingFree bool            `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Order struct {
	ID            string             `gorm:"primaryKey;size:64;not null"`
	OrderNumber   string             `gorm:"size:64;uniqueIndex;not null"`
	CustomerID    string             `gorm:"size:64;index;not null"`
	Customer      *Customer          `gorm:"foreignKey:CustomerID"`
	Status        OrderStatus        `gorm:"size:16;index;not null;check:chk_orders_status,status IN ('pending','confirmed','paid','processing','shipped','delivered','cancelled','refunded')"`
	PaymentStatus OrderPaymentStatus `gorm:"size:16;index;not null;check:chk_orders_payment_status,payment_status IN ('unpaid','partial','paid','cancelled')"`
	PaymentMethod PaymentMethod      `gorm:"size:32;not null"`
	Currency      string             `gorm:"size:8;not null"`

	// OrderAmount is the line item subtotal.
	OrderAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingCost   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CouponCode     string          `gorm:"size:64"`

	// address snapshots taken at checkout, never live references
	ShippingAddress string `gorm:"type:text;not null"`
	BillingAddress  string `gorm:"type:text"`
	CustomerNotes   string `gorm:"type:text"`
	AdminNotes      string `gorm:"type:text"`

	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Details []*OrderDetail `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type OrderDetail struct {
	ID      string `gorm:"primaryKey;size:64;not null"`
	OrderID string `gorm:"size:64;index;not null"`
	// FK → products.id, not enforced: the catalog is external
	ProductID      string          `gorm:"size:64;index;not null"`
	ProductName    string          `gorm:"size:128"`
	ProductImage   string          `gorm:"size:255"`
	Quantity       int             `gorm:"not null;check:chk_order_details_quantity,quantity > 0"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DeliveryStatus DeliveryStatus  `gorm:"size:16;not null;check:chk_order_details_delivery_status,delivery_status IN ('pending','shipped','delivered','cancelled')"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Payment struct {
	ID         string          `gorm:"primaryKey;size:64;not null"`
	OrderID    string          `gorm:"size:64;index;not null"`
	CustomerID string          `gorm:"size:64;index;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency   string          `gorm:"size:8;not null"`
	Method     PaymentMethod   `gorm:"size:32;not null;check:chk_payments_method,method IN ('card','paypal','wallet','cash_on_delivery','bank_transfer')"`
	Status     PaymentStatus   `gorm:"size:16;index;not null;check:chk_payments_status,status IN ('pending','completed','failed','refunded','cancelled')"`
	Gateway    string          `gorm:"size:32;not null"`
	// GatewayHandle is the gateway side charge handle (paypal order id, braintree reference)
	GatewayHandle string `gorm:"size:128;index"`
	// TransactionRef is the settled transaction (paypal capture id, braintree transaction id)
	TransactionRef string          `gorm:"size:128"`
	RefundAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	RefundReason   string          `gorm:"type:text"`
	FailureReason  string          `gorm:"type:text"`
	RetryCount     int             `gorm:"not null;default:0"`
	ProcessedAt    *time.Time
	RefundedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// ClientToken is handed to the payer once and never stored.
	ClientToken string `gorm:"-"`
}

type NotificationJob struct {
	ID             string    `gorm:"primaryKey;size:64;not null"`
	OrderID        string    `gorm:"size:64;index;not null"`
	RecipientEmail string    `gorm:"size:255;not null"`
	Template       string    `gorm:"size:64;not null"`
	Attempt        int       `gorm:"not null;default:0"`
	State          JobState  `gorm:"size:16;index:idx_notification_jobs_state_available;not null"`
	AvailableAt    time.Time `gorm:"index:idx_notification_jobs_state_available;not null"`
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// All lists every table the service migrates.
func All() []any {
	return []any{
		&Customer{},
		&Product{},
		&Order{},
		&OrderDetail{},
		&Payment{},
		&NotificationJob{},
		&WebhookEvent{},
	}
}
