package repository

import (
	"context"

	"ecommerce-order-service/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	FindByID(ctx context.Context, paymentID string) (*model.Payment, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, paymentID string) (*model.Payment, error)
	FindByGatewayHandle(ctx context.Context, gateway, handle string) (*model.Payment, error)
	ListByCustomer(ctx context.Context, customerID string, page Page) ([]*model.Payment, error)
	Save(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	CancelOpen(ctx context.Context, tx *gorm.DB, orderID string) error
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

func (r *paymentRepoImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoImpl) FindByID(ctx context.Context, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("id = ?", paymentID).
		First(&payment).Error

	if err != nil {
		return nil, notFoundOr(err, "payment", paymentID)
	}

	return &payment, nil
}

func (r *paymentRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := forUpdate(tx.WithContext(ctx)).
		Where("id = ?", paymentID).
		First(&payment).Error

	if err != nil {
		return nil, notFoundOr(err, "payment", paymentID)
	}

	return &payment, nil
}

func (r *paymentRepoImpl) FindByGatewayHandle(ctx context.Context, gateway, handle string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_handle = ?", gateway, handle).
		Order("created_at DESC").
		First(&payment).Error

	if err != nil {
		return nil, notFoundOr(err, "payment with handle", handle)
	}

	return &payment, nil
}

func (r *paymentRepoImpl) ListByCustomer(ctx context.Context, customerID string, page Page) ([]*model.Payment, error) {
	page = page.normalize()

	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC, id").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&payments).Error

	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepoImpl) Save(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Save(payment).Error
}

// CancelOpen cancels the order's payments that were never captured.
func (r *paymentRepoImpl) CancelOpen(ctx context.Context, tx *gorm.DB, orderID string) error {
	return tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("order_id = ? AND status IN ?", orderID,
			[]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed}).
		Update("status", model.PaymentStatusCancelled).Error
}
