package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/logging"
	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/repo"
	"github.com/mandymgr/helseriet-backend/internal/status"
	"github.com/mandymgr/helseriet-backend/internal/vipps"
)

var (
	ErrValidation   = errors.New("validation")    // 400
	ErrNotFound     = errors.New("not found")     // 404
	ErrForbidden    = errors.New("forbidden")     // 403
	ErrInvalidState = errors.New("invalid state") // 409
	ErrProvider     = errors.New("provider")      // 502
)

const ProviderVipps = "vipps"

// Provider is the payment network the service delegates to. Satisfied
// by *vipps.Client.
type Provider interface {
	GetPaymentStatus(ctx context.Context, orderNumber string) (*vipps.TransactionInfo, error)
	CapturePayment(ctx context.Context, orderNumber string, amount float64, description string) (*vipps.Result, error)
	CancelPayment(ctx context.Context, orderNumber string, description string) (*vipps.Result, error)
}

// Publisher is satisfied by *mykafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

// Service owns every sanctioned write to order status, payment status
// and fulfillment status. All multi-row updates run in one transaction
// against the store.
type Service struct {
	db       *gorm.DB
	orders   *repo.OrderRepo
	carts    *repo.CartRepo
	provider Provider
	events   Publisher
}

func New(db *gorm.DB, provider Provider, events Publisher) *Service {
	return &Service{
		db:       db,
		orders:   &repo.OrderRepo{DB: db},
		carts:    &repo.CartRepo{DB: db},
		provider: provider,
		events:   events,
	}
}

type CreateOrderInput struct {
	Email    string          `json:"email"`
	Billing  models.Address  `json:"billing_address"`
	Shipping *models.Address `json:"shipping_address"`
	Notes    string          `json:"notes"`
}

// CreateOrder snapshots the user's cart into immutable order lines,
// opens a pending payment and clears the cart, all in one transaction.
func (s *Service) CreateOrder(ctx context.Context, userID uint, in CreateOrderInput) (*models.Order, error) {
	if in.Email == "" {
		return nil, fmt.Errorf("%w: email required", ErrValidation)
	}
	if !in.Billing.Complete() {
		return nil, fmt.Errorf("%w: billing address incomplete", ErrValidation)
	}
	shipping := in.Billing
	if in.Shipping != nil {
		if !in.Shipping.Complete() {
			return nil, fmt.Errorf("%w: shipping address incomplete", ErrValidation)
		}
		shipping = *in.Shipping
	}

	var order models.Order

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		items, err := s.carts.ItemsByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrValidation)
		}

		var total float64
		orderItems := make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			var p models.Product
			if err := tx.WithContext(ctx).First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
				}
				return err
			}
			line := models.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				LineTotal: float64(it.Quantity) * p.Price,
			}
			total += line.LineTotal
			orderItems = append(orderItems, line)
		}

		order = models.Order{
			OrderNumber:       NewOrderNumber(),
			UserID:            userID,
			Email:             in.Email,
			Status:            status.OrderPending,
			PaymentStatus:     status.PaymentPending,
			FulfillmentStatus: status.FulfillmentUnfulfilled,
			Billing:           in.Billing,
			Shipping:          shipping,
			Notes:             in.Notes,
			Total:             total,
		}
		if err := s.orders.Create(ctx, tx, &order); err != nil {
			return err
		}

		for i := range orderItems {
			orderItems[i].OrderID = order.ID
			if err := tx.WithContext(ctx).Create(&orderItems[i]).Error; err != nil {
				return err
			}
		}
		order.Items = orderItems

		payment := models.Payment{
			OrderID:  order.ID,
			Provider: ProviderVipps,
			Status:   status.PaymentPending,
			Amount:   total,
		}
		if err := s.orders.CreatePayment(ctx, tx, &payment); err != nil {
			return err
		}

		return s.carts.Clear(ctx, tx, userID)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.publish(ctx, "order_events", order.OrderNumber, map[string]any{
		"type":         "order_created",
		"order_number": order.OrderNumber,
		"user_id":      userID,
		"total":        order.Total,
	})
	return &order, nil
}

// CancelOrder is the user-facing cancellation. A captured payment is
// not reversed here; that is a manual administrative follow-up.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	var order *models.Order

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("%w: order %d", ErrForbidden, orderID)
		}
		if order.Status != status.OrderPending && order.Status != status.OrderConfirmed {
			return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidState, order.Status)
		}
		order.Status = status.OrderCancelled
		return s.orders.Save(ctx, tx, order)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.publish(ctx, "order_events", order.OrderNumber, map[string]any{
		"type":         "order_cancelled",
		"order_number": order.OrderNumber,
		"user_id":      userID,
	})
	return order, nil
}

type StatusUpdate struct {
	Status            *status.OrderStatus       `json:"status"`
	PaymentStatus     *status.PaymentStatus     `json:"payment_status"`
	FulfillmentStatus *status.FulfillmentStatus `json:"fulfillment_status"`
}

// UpdateOrderStatus is the administrator override. It bypasses the
// provider mapping but never the transition graphs: every requested
// field is checked before anything is written.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uint, upd StatusUpdate) (*models.Order, error) {
	var order *models.Order

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.findForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		next := *order
		if upd.Status != nil {
			if !upd.Status.Valid() {
				return fmt.Errorf("%w: unknown order status %q", ErrValidation, *upd.Status)
			}
			if !order.Status.CanTransitionTo(*upd.Status) {
				return fmt.Errorf("%w: order %s -> %s", ErrInvalidState, order.Status, *upd.Status)
			}
			next.Status = *upd.Status
		}
		if upd.PaymentStatus != nil {
			if !upd.PaymentStatus.Valid() {
				return fmt.Errorf("%w: unknown payment status %q", ErrValidation, *upd.PaymentStatus)
			}
			if !order.PaymentStatus.CanTransitionTo(*upd.PaymentStatus) {
				return fmt.Errorf("%w: payment %s -> %s", ErrInvalidState, order.PaymentStatus, *upd.PaymentStatus)
			}
			next.PaymentStatus = *upd.PaymentStatus
		}
		if upd.FulfillmentStatus != nil {
			if !upd.FulfillmentStatus.Valid() {
				return fmt.Errorf("%w: unknown fulfillment status %q", ErrValidation, *upd.FulfillmentStatus)
			}
			if !order.FulfillmentStatus.CanTransitionTo(*upd.FulfillmentStatus) {
				return fmt.Errorf("%w: fulfillment %s -> %s", ErrInvalidState, order.FulfillmentStatus, *upd.FulfillmentStatus)
			}
			next.FulfillmentStatus = *upd.FulfillmentStatus
		}
		if next.FulfillmentStatus.RequiresPaidOrder() && next.PaymentStatus != status.PaymentCompleted {
			return fmt.Errorf("%w: cannot ship unpaid order", ErrInvalidState)
		}

		*order = next
		return s.orders.Save(ctx, tx, order)
	})
	if txErr != nil {
		return nil, txErr
	}

	logging.FromContext(ctx).Info("order status overridden",
		"order_number", order.OrderNumber,
		"status", order.Status,
		"payment_status", order.PaymentStatus,
		"fulfillment_status", order.FulfillmentStatus,
	)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", ErrForbidden, orderID)
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID uint, limit, offset int) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) findForUpdate(ctx context.Context, tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

func (s *Service) publish(ctx context.Context, topic, key string, event map[string]any) {
	if s.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.PublishEvent(pubCtx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("event publish failed", "topic", topic, "error", err)
	}
}

// NewOrderNumber generates the externally visible correlation key used
// with the payment provider.
func NewOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("HS-%s-%s", time.Now().Format("20060102"), suffix)
}
