package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecommerce-order-service/internal/apperror"
	"ecommerce-order-service/internal/metrics"
	"ecommerce-order-service/internal/model"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InventoryRepository is the inventory ledger. It is the only writer of
// products.stock and always runs inside the caller's transaction.
type InventoryRepository interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID string, quantity int) (*model.Product, error)
	Release(ctx context.Context, tx *gorm.DB, productID string, quantity int) error
}

type inventoryRepoImpl struct{}

func NewInventoryRepository() InventoryRepository {
	return &inventoryRepoImpl{}
}

// Reserve locks the product row, re-reads stock and decrements it.
// The decrement is additionally guarded by stock >= quantity so stock can
// not go negative even where row locks are unavailable.
func (r *inventoryRepoImpl) Reserve(ctx context.Context, tx *gorm.DB, productID string, quantity int) (*model.Product, error) {
	if quantity <= 0 {
		return nil, apperror.Validation("quantity for product %s must be positive, got %d", productID, quantity)
	}

	var product model.Product
	err := forUpdate(tx.WithContext(ctx)).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, notFoundOr(err, "product", productID)
	}

	if product.Stock < quantity {
		metrics.InventoryReservations.WithLabelValues("insufficient").Inc()
		return nil, apperror.InsufficientStock(productID, product.Stock, quantity)
	}

	result := tx.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", quantity),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("decrement stock of product %s: %w", productID, result.Error)
	}

	if result.RowsAffected == 0 {
		available, err := r.currentStock(ctx, tx, productID)
		if err != nil {
			return nil, err
		}
		metrics.InventoryReservations.WithLabelValues("insufficient").Inc()
		return nil, apperror.InsufficientStock(productID, available, quantity)
	}

	product.Stock -= quantity
	metrics.InventoryReservations.WithLabelValues("reserved").Inc()

	log.WithFields(log.Fields{
		"product_id": productID,
		"quantity":   quantity,
		"stock":      product.Stock,
	}).Debug("stock reserved")

	return &product, nil
}

// Release adds stock back. There is no upper bound, only the quantity
// itself must not be negative.
func (r *inventoryRepoImpl) Release(ctx context.Context, tx *gorm.DB, productID string, quantity int) error {
	if quantity < 0 {
		return apperror.Validation("release quantity for product %s must not be negative, got %d", productID, quantity)
	}
	if quantity == 0 {
		return nil
	}

	result := tx.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", quantity),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("increment stock of product %s: %w", productID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("product %s not found", productID)
	}

	metrics.InventoryReservations.WithLabelValues("released").Inc()
	return nil
}

func (r *inventoryRepoImpl) currentStock(ctx context.Context, tx *gorm.DB, productID string) (int, error) {
	var product model.Product
	err := tx.WithContext(ctx).Select("stock").Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperror.NotFound("product %s not found", productID)
	}
	if err != nil {
		return 0, fmt.Errorf("read stock of product %s: %w", productID, err)
	}
	return product.Stock, nil
}
