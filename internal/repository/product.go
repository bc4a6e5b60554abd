package repository

import (
	"context"

	"ecommerce-order-service/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Demo catalog ids, stable across restarts so seeding stays idempotent.
const (
	DemoProductKeyboardID = "8f6a1c2e-3b4d-4e5f-9a01-000000000001"
	DemoProductMouseID    = "8f6a1c2e-3b4d-4e5f-9a01-000000000002"
	DemoProductEbookID    = "8f6a1c2e-3b4d-4e5f-9a01-000000000003"
)

type ProductRepository interface {
	Seed(ctx context.Context) error
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: DemoProductKeyboardID, Name: "Mechanical Keyboard", Image: "keyboard.png", Price: decimal.RequireFromString("50.00"), Stock: 100},
		{ID: DemoProductMouseID, Name: "Wireless Mouse", Image: "mouse.png", Price: decimal.RequireFromString("30.00"), Stock: 100},
		{ID: DemoProductEbookID, Name: "Go Patterns eBook", Image: "ebook.png", Price: decimal.RequireFromString("12.50"), Stock: 1000, IsShippingFree: true},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}

func (r *productRepoImpl) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepoImpl) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		return nil, notFoundOr(err, "product", productID)
	}

	return &product, nil
}
