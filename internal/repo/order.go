package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// OrderRepo runs all order and payment row access. Methods that take a
// tx handle are meant to compose inside a caller-owned transaction so
// multi-row updates commit or roll back together.
type OrderRepo struct {
	DB *gorm.DB
}

func (r *OrderRepo) Create(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepo) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.DB.WithContext(ctx).Preload("Items").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) FindByOrderNumber(ctx context.Context, tx *gorm.DB, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := tx.WithContext(ctx).Where("order_number = ?", orderNumber).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Items").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepo) Save(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return tx.WithContext(ctx).Save(order).Error
}

func (r *OrderRepo) CreatePayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

// ActivePayment returns the most recent payment attempt for the given
// provider. At most one attempt per provider is non-terminal at a time.
func (r *OrderRepo) ActivePayment(ctx context.Context, tx *gorm.DB, orderID uint, provider string) (*models.Payment, error) {
	var payment models.Payment
	err := tx.WithContext(ctx).
		Where("order_id = ? AND provider = ?", orderID, provider).
		Order("created_at DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *OrderRepo) SavePayment(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return tx.WithContext(ctx).Save(payment).Error
}
