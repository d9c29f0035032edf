package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/logging"
	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/repo"
	"github.com/mandymgr/helseriet-backend/internal/status"
	"github.com/mandymgr/helseriet-backend/internal/vipps"
)

// ReconcileOutcome tells the caller what a notification did. Not-found
// is an explicit variant rather than an error: webhook retries must not
// cascade against a store that may already be consistent.
type ReconcileOutcome int

const (
	// ReconcileApplied means payment and order rows were updated.
	ReconcileApplied ReconcileOutcome = iota
	// ReconcileNoop means the payment was already in the reported
	// terminal state; the duplicate was acknowledged without writes.
	ReconcileNoop
	// ReconcileIgnored means the notification was unrecognized or
	// behind the stored terminal state and was dropped.
	ReconcileIgnored
	// ReconcileOrderNotFound and ReconcilePaymentNotFound report a
	// lookup miss on the correlation key.
	ReconcileOrderNotFound
	ReconcilePaymentNotFound
)

// ReconcileTransaction is the sole writer of payment state derived from
// the provider. It is idempotent: replaying a notification yields the
// same stored state and no duplicate side effects, and a notification
// behind the stored terminal state is detected and dropped.
func (s *Service) ReconcileTransaction(ctx context.Context, orderNumber string, info vipps.TransactionInfo) (ReconcileOutcome, error) {
	l := logging.FromContext(ctx).With("order_number", orderNumber)

	outcome := ReconcileApplied
	var order *models.Order
	var completed bool

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.FindByOrderNumber(ctx, tx, orderNumber)
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("webhook for unknown order")
			outcome = ReconcileOrderNotFound
			return nil
		}
		if err != nil {
			return err
		}

		payment, err := s.orders.ActivePayment(ctx, tx, order.ID, ProviderVipps)
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("webhook for order without payment record")
			outcome = ReconcilePaymentNotFound
			return nil
		}
		if err != nil {
			return err
		}

		if info.Status == vipps.StatusUnknown {
			l.Warn("unrecognized provider status", "raw_status", info.RawStatus)
			outcome = ReconcileIgnored
			return nil
		}

		wanted := vipps.GetStandardStatus(info.Status)
		if wanted == status.PaymentPending {
			// Intermediate provider states (INITIATE, REGISTER, ...)
			// carry no transition for us.
			outcome = ReconcileIgnored
			return nil
		}

		if payment.Status.Terminal() {
			if payment.Status == wanted {
				outcome = ReconcileNoop
				return nil
			}
			l.Warn("notification behind stored terminal state",
				"stored", payment.Status, "reported", wanted)
			outcome = ReconcileIgnored
			return nil
		}

		now := time.Now()
		payment.Status = wanted
		if payment.TransactionID == "" {
			payment.TransactionID = info.TransactionID
		}
		if raw, err := json.Marshal(info); err == nil {
			payment.Metadata = string(raw)
		}
		if wanted == status.PaymentCompleted && payment.ConfirmedAt == nil {
			payment.ConfirmedAt = &now
			completed = true
		}
		if err := s.orders.SavePayment(ctx, tx, payment); err != nil {
			return err
		}

		order.PaymentStatus = wanted
		var nextOrder status.OrderStatus
		if wanted == status.PaymentCompleted {
			nextOrder = status.OrderConfirmed
		} else {
			nextOrder = status.OrderCancelled
		}
		if order.Status.CanTransitionTo(nextOrder) {
			order.Status = nextOrder
		} else {
			l.Warn("order status not moved by notification",
				"order_status", order.Status, "requested", nextOrder)
		}
		if order.Status == status.OrderConfirmed && order.ConfirmedAt == nil {
			order.ConfirmedAt = &now
		}
		return s.orders.Save(ctx, tx, order)
	})
	if txErr != nil {
		return 0, txErr
	}

	if outcome == ReconcileApplied {
		event := map[string]any{
			"type":           "payment_failed",
			"order_number":   orderNumber,
			"payment_status": order.PaymentStatus,
		}
		if completed {
			event["type"] = "payment_completed"
		}
		s.publish(ctx, "payment_events", orderNumber, event)
		l.Info("payment reconciled",
			"provider_status", info.Status,
			"payment_status", order.PaymentStatus,
			"order_status", order.Status,
		)
	}
	return outcome, nil
}

// GetPaymentStatus is a read-through poll of the provider. It maps the
// raw provider status into the internal vocabulary without touching
// stored state; repeating it is always safe.
func (s *Service) GetPaymentStatus(ctx context.Context, orderID uint) (*vipps.TransactionInfo, status.PaymentStatus, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, "", err
	}

	info, err := s.provider.GetPaymentStatus(ctx, order.OrderNumber)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return info, vipps.GetStandardStatus(info.Status), nil
}

// RefreshPaymentStatus polls the provider and routes the answer through
// the same reconciliation path as the webhook. This is the recovery
// hook for lost webhooks; idempotence makes repeated calls safe.
func (s *Service) RefreshPaymentStatus(ctx context.Context, orderID uint) (ReconcileOutcome, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return 0, err
	}

	info, err := s.provider.GetPaymentStatus(ctx, order.OrderNumber)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return s.ReconcileTransaction(ctx, order.OrderNumber, *info)
}

// CapturePayment converts a reservation into a charge. Success does not
// set terminal state locally; that happens when the webhook or a
// refresh confirms it, which serializes the race between the two paths.
func (s *Service) CapturePayment(ctx context.Context, orderID uint, amount float64, description string) (*vipps.Result, error) {
	order, payment, err := s.paymentForDelegation(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = payment.Amount
	}

	res, err := s.provider.CapturePayment(ctx, order.OrderNumber, amount, description)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	logging.FromContext(ctx).Info("payment capture requested",
		"order_number", order.OrderNumber, "amount", amount)
	return res, nil
}

// CancelPayment releases a reservation that will not be captured.
func (s *Service) CancelPayment(ctx context.Context, orderID uint, description string) (*vipps.Result, error) {
	order, _, err := s.paymentForDelegation(ctx, orderID)
	if err != nil {
		return nil, err
	}

	res, err := s.provider.CancelPayment(ctx, order.OrderNumber, description)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	logging.FromContext(ctx).Info("payment cancel requested",
		"order_number", order.OrderNumber)
	return res, nil
}

func (s *Service) paymentForDelegation(ctx context.Context, orderID uint) (*models.Order, *models.Payment, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, nil, err
	}

	payment, err := s.orders.ActivePayment(ctx, s.db, order.ID, ProviderVipps)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: no %s payment for order %d", ErrNotFound, ProviderVipps, orderID)
	}
	if err != nil {
		return nil, nil, err
	}
	if payment.Status != status.PaymentPending {
		return nil, nil, fmt.Errorf("%w: payment already %s", ErrInvalidState, payment.Status)
	}
	return order, payment, nil
}
