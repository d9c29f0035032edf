package order

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/config"
	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/status"
	"github.com/mandymgr/helseriet-backend/internal/vipps"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory db.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.Migrate(db))
	return db
}

type fakeProvider struct {
	info         *vipps.TransactionInfo
	result       *vipps.Result
	err          error
	statusCalls  int
	captureCalls int
	cancelCalls  int
}

func (f *fakeProvider) GetPaymentStatus(ctx context.Context, orderNumber string) (*vipps.TransactionInfo, error) {
	f.statusCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeProvider) CapturePayment(ctx context.Context, orderNumber string, amount float64, description string) (*vipps.Result, error) {
	f.captureCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) CancelPayment(ctx context.Context, orderNumber string, description string) (*vipps.Result, error) {
	f.cancelCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeProvider) {
	t.Helper()
	db := newTestDB(t)
	provider := &fakeProvider{}
	return New(db, provider, nil), db, provider
}

func testAddress() models.Address {
	return models.Address{
		FirstName:  "Kari",
		LastName:   "Nordmann",
		Street:     "Storgata 1",
		City:       "Oslo",
		PostalCode: "0155",
		Country:    "NO",
	}
}

// seedCheckout puts two products and matching cart lines in place for
// user 1 and returns the expected total.
func seedCheckout(t *testing.T, db *gorm.DB) float64 {
	t.Helper()
	products := []models.Product{
		{Name: "Omega-3 Premium", Description: "fish oil", Price: 299, Count: 50},
		{Name: "Vitamin D3", Description: "2000 IU", Price: 149, Count: 80},
	}
	for i := range products {
		require.NoError(t, db.Create(&products[i]).Error)
	}
	require.NoError(t, db.Create(&models.CartItem{UserID: 1, ProductID: products[0].ID, Quantity: 2}).Error)
	require.NoError(t, db.Create(&models.CartItem{UserID: 1, ProductID: products[1].ID, Quantity: 1}).Error)
	return 2*299 + 149
}

// seedOrder creates an order with one pending vipps payment, bypassing
// checkout.
func seedOrder(t *testing.T, db *gorm.DB, st status.OrderStatus, ps status.PaymentStatus) *models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:       NewOrderNumber(),
		UserID:            1,
		Email:             "kari@example.com",
		Status:            st,
		PaymentStatus:     ps,
		FulfillmentStatus: status.FulfillmentUnfulfilled,
		Billing:           testAddress(),
		Shipping:          testAddress(),
		Total:             747,
	}
	require.NoError(t, db.Create(&order).Error)
	payment := models.Payment{
		OrderID:  order.ID,
		Provider: ProviderVipps,
		Status:   ps,
		Amount:   order.Total,
	}
	require.NoError(t, db.Create(&payment).Error)
	return &order
}
