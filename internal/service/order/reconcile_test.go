package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/status"
	"github.com/mandymgr/helseriet-backend/internal/vipps"
)

func authorizedInfo(txID string) vipps.TransactionInfo {
	return vipps.TransactionInfo{
		Status:        vipps.StatusAuthorized,
		RawStatus:     "AUTHORIZED",
		TransactionID: txID,
		Amount:        747,
		TimeStamp:     "2025-01-01T12:00:00Z",
	}
}

func storedState(t *testing.T, db *gorm.DB, orderID uint) (models.Order, models.Payment) {
	t.Helper()
	var o models.Order
	require.NoError(t, db.First(&o, orderID).Error)
	var p models.Payment
	require.NoError(t, db.Where("order_id = ?", orderID).First(&p).Error)
	return o, p
}

func TestReconcileAuthorized(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.NoError(t, err)
	require.Equal(t, ReconcileApplied, outcome)

	o, p := storedState(t, db, order.ID)
	require.Equal(t, status.OrderConfirmed, o.Status)
	require.Equal(t, status.PaymentCompleted, o.PaymentStatus)
	require.NotNil(t, o.ConfirmedAt)
	require.Equal(t, status.PaymentCompleted, p.Status)
	require.Equal(t, "tx1", p.TransactionID)
	require.NotNil(t, p.ConfirmedAt)
	require.Contains(t, p.Metadata, "AUTHORIZED")
}

func TestReconcileIdempotentReplay(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.NoError(t, err)
	require.Equal(t, ReconcileApplied, outcome)

	o1, p1 := storedState(t, db, order.ID)

	// Same payload again: acknowledged, nothing changes, confirmedAt
	// is not rewritten.
	outcome, err = svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.NoError(t, err)
	require.Equal(t, ReconcileNoop, outcome)

	o2, p2 := storedState(t, db, order.ID)
	require.Equal(t, o1, o2)
	require.Equal(t, p1, p2)
}

func TestReconcileCancelledAndFailed(t *testing.T) {
	svc, db, _ := newTestService(t)

	cases := []struct {
		provider vipps.TransactionStatus
		payment  status.PaymentStatus
	}{
		{vipps.StatusCancelled, status.PaymentCancelled},
		{vipps.StatusExpired, status.PaymentFailed},
		{vipps.StatusRejected, status.PaymentFailed},
	}
	for _, tc := range cases {
		order := seedOrder(t, db, status.OrderPending, status.PaymentPending)
		info := vipps.TransactionInfo{
			Status:        tc.provider,
			RawStatus:     string(tc.provider),
			TransactionID: "tx-neg",
		}
		outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, info)
		require.NoError(t, err)
		require.Equal(t, ReconcileApplied, outcome)

		o, p := storedState(t, db, order.ID)
		require.Equal(t, status.OrderCancelled, o.Status, "provider status %s", tc.provider)
		require.Equal(t, tc.payment, o.PaymentStatus)
		require.Equal(t, tc.payment, p.Status)
		require.Nil(t, p.ConfirmedAt)
	}
}

func TestReconcileNeverRegressesCompleted(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	_, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.NoError(t, err)

	o1, p1 := storedState(t, db, order.ID)

	for _, late := range []vipps.TransactionStatus{
		vipps.StatusExpired, vipps.StatusCancelled, vipps.StatusRejected,
	} {
		outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, vipps.TransactionInfo{
			Status:    late,
			RawStatus: string(late),
		})
		require.NoError(t, err)
		require.Equal(t, ReconcileIgnored, outcome, "late %s must be dropped", late)
	}

	o2, p2 := storedState(t, db, order.ID)
	require.Equal(t, o1, o2)
	require.Equal(t, p1, p2)
}

func TestReconcileUnknownStatusIgnored(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, vipps.TransactionInfo{
		Status:    vipps.ParseTransactionStatus("TOTALLY_NEW_STATE"),
		RawStatus: "TOTALLY_NEW_STATE",
	})
	require.NoError(t, err)
	require.Equal(t, ReconcileIgnored, outcome)

	o, p := storedState(t, db, order.ID)
	require.Equal(t, status.OrderPending, o.Status)
	require.Equal(t, status.PaymentPending, p.Status)
}

func TestReconcileIntermediateStatusIgnored(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, vipps.TransactionInfo{
		Status:    vipps.StatusReserved,
		RawStatus: "RESERVE",
	})
	require.NoError(t, err)
	require.Equal(t, ReconcileIgnored, outcome)
}

func TestReconcileUnknownOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	outcome, err := svc.ReconcileTransaction(context.Background(), "HS-20250101-MISSING1", authorizedInfo("tx1"))
	require.NoError(t, err, "lookup miss is a result, not an error")
	require.Equal(t, ReconcileOrderNotFound, outcome)
}

func TestReconcileOrderWithoutPayment(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)
	require.NoError(t, db.Where("order_id = ?", order.ID).Delete(&models.Payment{}).Error)

	outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.NoError(t, err)
	require.Equal(t, ReconcilePaymentNotFound, outcome)
}

func TestReconcileTransactionIDSetOnce(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	require.NoError(t, db.Model(&models.Payment{}).
		Where("order_id = ?", order.ID).
		Update("transaction_id", "tx-original").Error)

	_, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx-other"))
	require.NoError(t, err)

	_, p := storedState(t, db, order.ID)
	require.Equal(t, "tx-original", p.TransactionID)
}

func TestReconcileAtomicity(t *testing.T) {
	svc, db, _ := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)

	// Fail the order-row write after the payment row was updated in the
	// same transaction; both must roll back.
	injected := errors.New("injected failure")
	require.NoError(t, db.Callback().Update().Before("gorm:update").
		Register("fail_orders_update", func(tx *gorm.DB) {
			if tx.Statement.Table == "orders" {
				tx.AddError(injected)
			}
		}))
	defer func() {
		require.NoError(t, db.Callback().Update().Remove("fail_orders_update"))
	}()

	_, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.ErrorIs(t, err, injected)

	o, p := storedState(t, db, order.ID)
	require.Equal(t, status.OrderPending, o.Status)
	require.Equal(t, status.PaymentPending, o.PaymentStatus)
	require.Equal(t, status.PaymentPending, p.Status)
	require.Empty(t, p.TransactionID)
}

func TestReconcileCancelledOrderKeepsOrderStatus(t *testing.T) {
	svc, db, _ := newTestService(t)
	// User cancelled before the provider confirmed; the payment update
	// still lands but the order must not leave CANCELLED.
	order := seedOrder(t, db, status.OrderCancelled, status.PaymentPending)

	outcome, err := svc.ReconcileTransaction(context.Background(), order.OrderNumber, authorizedInfo("tx1"))
	require.NoError(t, err)
	require.Equal(t, ReconcileApplied, outcome)

	o, p := storedState(t, db, order.ID)
	require.Equal(t, status.OrderCancelled, o.Status)
	require.Equal(t, status.PaymentCompleted, p.Status)
}

func TestGetPaymentStatusDoesNotMutate(t *testing.T) {
	svc, db, provider := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)
	info := authorizedInfo("tx1")
	provider.info = &info

	got, standard, err := svc.GetPaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, status.PaymentCompleted, standard)
	require.Equal(t, "tx1", got.TransactionID)

	o, p := storedState(t, db, order.ID)
	require.Equal(t, status.OrderPending, o.Status)
	require.Equal(t, status.PaymentPending, p.Status)
}

func TestRefreshPaymentStatusConvergesMissedWebhook(t *testing.T) {
	svc, db, provider := newTestService(t)
	order := seedOrder(t, db, status.OrderPending, status.PaymentPending)
	info := authorizedInfo("tx1")
	provider.info = &info

	outcome, err := svc.RefreshPaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, ReconcileApplied, outcome)

	o, p := storedState(t, db, order.ID)
	require.Equal(t, status.OrderConfirmed, o.Status)
	require.Equal(t, status.PaymentCompleted, p.Status)

	// Polling again is a safe no-op.
	outcome, err = svc.RefreshPaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, ReconcileNoop, outcome)
}
