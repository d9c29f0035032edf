package cart

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/repo"
)

var (
	ErrValidation = errors.New("validation") // 400
	ErrNotFound   = errors.New("not found")  // 404
)

// Service is the cart collaborator the order manager snapshots at
// checkout time.
type Service struct {
	db    *gorm.DB
	items *repo.CartRepo
}

func New(db *gorm.DB) *Service {
	return &Service{db: db, items: &repo.CartRepo{DB: db}}
}

func (s *Service) GetCart(ctx context.Context, userID uint) ([]models.CartItem, error) {
	return s.items.ItemsByUser(ctx, s.db, userID)
}

// AddItem merges into the existing line for the product if one exists.
func (s *Service) AddItem(ctx context.Context, userID, productID, quantity uint) (*models.CartItem, error) {
	if productID == 0 {
		return nil, fmt.Errorf("%w: product_id required", ErrValidation)
	}
	if quantity < 1 {
		quantity = 1
	}

	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
		}
		return nil, err
	}

	item, err := s.items.FindItem(ctx, userID, productID)
	if err == nil {
		item.Quantity += quantity
		if err := s.items.Save(ctx, item); err != nil {
			return nil, err
		}
		return item, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	item = &models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveOne decrements the line, deleting it at quantity one.
func (s *Service) RemoveOne(ctx context.Context, userID, itemID uint) (*models.CartItem, error) {
	item, err := s.items.FindItemByID(ctx, userID, itemID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: cart item %d", ErrNotFound, itemID)
	}
	if err != nil {
		return nil, err
	}

	if item.Quantity > 1 {
		item.Quantity--
		if err := s.items.Save(ctx, item); err != nil {
			return nil, err
		}
		return item, nil
	}

	if err := s.items.Delete(ctx, item); err != nil {
		return nil, err
	}
	item.Quantity = 0
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID uint) error {
	item, err := s.items.FindItemByID(ctx, userID, itemID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: cart item %d", ErrNotFound, itemID)
	}
	if err != nil {
		return err
	}
	return s.items.Delete(ctx, item)
}
