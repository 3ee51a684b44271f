package repository

import (
	"context"
	"time"

	"example.com/storefront/services/orders/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// orderRepository implements OrderRepository over GORM
type orderRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// Create inserts an order together with its line items
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return errors.Wrap(err, "failed to create order")
	}
	return nil
}

// GetByID gets an order by internal identifier, items populated
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").Preload("Items.Product").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get order by ID")
	}
	return &order, nil
}

// GetByNumber gets an order by its human-readable number
func (r *orderRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").Preload("Items.Product").
		First(&order, "number = ?", number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get order by number")
	}
	return &order, nil
}

// GetByIDs resolves the subset of ids that still reference live orders
func (r *orderRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Where("id IN ?", ids).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get orders by IDs")
	}
	return orders, nil
}

// List returns a page of orders plus the total count for the filter
func (r *orderRepository) List(ctx context.Context, filter ListOrdersFilter) ([]models.Order, int64, error) {
	query := r.readOnlyDB.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OrderType != "" {
		query = query.Where("type = ?", filter.OrderType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count orders")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var orders []models.Order
	err := query.
		Preload("Items").Preload("Items.Product").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list orders")
	}

	return orders, total, nil
}

// Save persists the full order record
func (r *orderRepository) Save(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Save(order).Error; err != nil {
		return errors.Wrap(err, "failed to save order")
	}
	return nil
}

// Delete removes an order and its line items
func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Order{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "failed to delete order")
	}
	return nil
}

// CountCreatedSince counts orders created at or after the given time,
// used for sequential order number generation.
func (r *orderRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Unscoped().
		Where("created_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count orders")
	}
	return count, nil
}
