package repository

import (
	"context"
	"fmt"
	"time"

	"ecommerce-order-service/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderFilter struct {
	Status     model.OrderStatus
	CustomerID string
	Page       Page
}

type OrderStats struct {
	TotalOrders  int64
	TotalRevenue decimal.Decimal
	ByStatus     map[model.OrderStatus]int64
	Recent       []*model.Order
}

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*model.Order, error)
	Save(ctx context.Context, tx *gorm.DB, order *model.Order) error
	UpdateDeliveryStatus(ctx context.Context, tx *gorm.DB, orderID string, status model.DeliveryStatus) error
	Stats(ctx context.Context, recent int) (*OrderStats, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

// Create inserts the order and its details. The customer row is never written.
func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Omit("Customer").Create(order).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at, id")
		}).
		Preload("Customer").
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, notFoundOr(err, "order", orderID)
	}

	return &order, nil
}

// FindByIDForUpdate locks the order row and loads its details in the same
// transaction.
func (r *orderRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := forUpdate(tx.WithContext(ctx)).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, notFoundOr(err, "order", orderID)
	}

	err = tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at, id").
		Find(&order.Details).Error
	if err != nil {
		return nil, fmt.Errorf("load details of order %s: %w", orderID, err)
	}

	return &order, nil
}

// List returns orders newest first.
func (r *orderRepoImpl) List(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	page := filter.Page.normalize()

	query := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at, id")
		}).
		Preload("Customer")

	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var orders []*model.Order
	err := query.
		Order("created_at DESC, id").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&orders).Error

	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) Save(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

func (r *orderRepoImpl) UpdateDeliveryStatus(ctx context.Context, tx *gorm.DB, orderID string, status model.DeliveryStatus) error {
	return tx.WithContext(ctx).Model(&model.OrderDetail{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"delivery_status": status,
			"updated_at":      time.Now(),
		}).Error
}

func (r *orderRepoImpl) Stats(ctx context.Context, recent int) (*OrderStats, error) {
	stats := &OrderStats{
		TotalRevenue: decimal.Zero,
		ByStatus:     make(map[model.OrderStatus]int64),
	}

	db := r.db.WithContext(ctx)

	if err := db.Model(&model.Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	var revenue decimal.NullDecimal
	err := db.Model(&model.Order{}).
		Select("SUM(total_amount)").
		Where("payment_status = ?", model.OrderPaymentPaid).
		Row().
		Scan(&revenue)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	if revenue.Valid {
		stats.TotalRevenue = revenue.Decimal.Round(2)
	}

	var rows []struct {
		Status model.OrderStatus
		Count  int64
	}
	err = db.Model(&model.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
	}

	err = db.Preload("Customer").
		Order("created_at DESC, id").
		Limit(recent).
		Find(&stats.Recent).Error
	if err != nil {
		return nil, fmt.Errorf("load recent orders: %w", err)
	}

	return stats, nil
}
