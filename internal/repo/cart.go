package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
)

type CartRepo struct {
	DB *gorm.DB
}

func (r *CartRepo) ItemsByUser(ctx context.Context, tx *gorm.DB, userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *CartRepo) FindItem(ctx context.Context, userID, productID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *CartRepo) FindItemByID(ctx context.Context, userID, itemID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *CartRepo) Save(ctx context.Context, item *models.CartItem) error {
	return r.DB.WithContext(ctx).Save(item).Error
}

func (r *CartRepo) Create(ctx context.Context, item *models.CartItem) error {
	return r.DB.WithContext(ctx).Create(item).Error
}

func (r *CartRepo) Delete(ctx context.Context, item *models.CartItem) error {
	return r.DB.WithContext(ctx).Delete(item).Error
}

// Clear removes every cart row for the user. Runs on the caller's tx
// so checkout empties the cart atomically with order creation.
func (r *CartRepo) Clear(ctx context.Context, tx *gorm.DB, userID uint) error {
	return tx.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}
