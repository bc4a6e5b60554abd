package repository

import (
	"context"

	"ecommerce-order-service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DemoCustomerID = "5b0e7d4a-9c3f-4a8e-b1d2-000000000001"

type CustomerRepository interface {
	Seed(ctx context.Context) error
	Create(ctx context.Context, customer *model.Customer) error
	FindByID(ctx context.Context, tx *gorm.DB, customerID string) (*model.Customer, error)
}

type customerRepoImpl struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepoImpl{
		db: db,
	}
}

func (r *customerRepoImpl) Seed(ctx context.Context) error {
	customer := &model.Customer{
		ID:    DemoCustomerID,
		Email: "demo.customer@example.com",
		Name:  "Demo Customer",
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(customer).Error
}

func (r *customerRepoImpl) Create(ctx context.Context, customer *model.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *customerRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, customerID string) (*model.Customer, error) {
	if tx == nil {
		tx = r.db
	}

	var customer model.Customer
	err := tx.WithContext(ctx).
		Where("id = ?", customerID).
		First(&customer).Error

	if err != nil {
		return nil, notFoundOr(err, "customer", customerID)
	}

	return &customer, nil
}
