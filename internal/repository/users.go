package repository

import (
	"context"

	"example.com/storefront/services/orders/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// userRepository implements UserRepository over GORM
type userRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// GetByID gets a user by ID
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user by ID")
	}
	return &user, nil
}

// GetByToken resolves an API token to its user
func (r *userRepository) GetByToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).First(&user, "api_token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user by token")
	}
	return &user, nil
}
