package repository

import (
	"context"

	"example.com/storefront/services/orders/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// productRepository implements ProductRepository over GORM
type productRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// GetByID gets a product by ID
func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.readOnlyDB.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get product by ID")
	}
	return &product, nil
}

// DecrementStock atomically subtracts quantity from a product's stock,
// floored at zero
func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("GREATEST(stock - ?, 0)", quantity))
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to decrement product stock")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
