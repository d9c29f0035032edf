package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/config"
	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/service/order"
	"github.com/mandymgr/helseriet-backend/internal/status"
)

type webhookEnv struct {
	E  *echo.Echo
	H  *WebhookHandler
	DB *gorm.DB
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	svc := order.New(db, nil, nil)
	return &webhookEnv{
		E:  echo.New(),
		H:  &WebhookHandler{Svc: svc},
		DB: db,
	}
}

func (env *webhookEnv) seedOrder(t *testing.T) *models.Order {
	t.Helper()
	o := models.Order{
		OrderNumber:       "HS-20250101-AAAA1111",
		UserID:            1,
		Email:             "kari@example.com",
		Status:            status.OrderPending,
		PaymentStatus:     status.PaymentPending,
		FulfillmentStatus: status.FulfillmentUnfulfilled,
		Total:             499,
	}
	require.NoError(t, env.DB.Create(&o).Error)
	require.NoError(t, env.DB.Create(&models.Payment{
		OrderID:  o.ID,
		Provider: order.ProviderVipps,
		Status:   status.PaymentPending,
		Amount:   o.Total,
	}).Error)
	return &o
}

func (env *webhookEnv) post(t *testing.T, body any) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/vipps/webhook", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, env.E.NewContext(req, rec)
}

func vippsPayload(orderNumber, providerStatus, txID string) map[string]any {
	return map[string]any{
		"orderId": orderNumber,
		"transactionInfo": map[string]any{
			"status":        providerStatus,
			"transactionId": txID,
			"amount":        499,
			"timeStamp":     "2025-01-01T12:00:00Z",
		},
	}
}

func TestWebhookAuthorized(t *testing.T) {
	env := newWebhookEnv(t)
	o := env.seedOrder(t)

	rec, c := env.post(t, vippsPayload(o.OrderNumber, "AUTHORIZED", "tx1"))
	require.NoError(t, env.H.HandleVippsWebhook(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])

	var stored models.Order
	require.NoError(t, env.DB.First(&stored, o.ID).Error)
	require.Equal(t, status.OrderConfirmed, stored.Status)
	require.Equal(t, status.PaymentCompleted, stored.PaymentStatus)
}

func TestWebhookReplayAcknowledged(t *testing.T) {
	env := newWebhookEnv(t)
	o := env.seedOrder(t)

	rec, c := env.post(t, vippsPayload(o.OrderNumber, "AUTHORIZED", "tx1"))
	require.NoError(t, env.H.HandleVippsWebhook(c))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, c = env.post(t, vippsPayload(o.OrderNumber, "AUTHORIZED", "tx1"))
	require.NoError(t, env.H.HandleVippsWebhook(c))
	require.Equal(t, http.StatusOK, rec.Code, "replay must be acknowledged")
}

func TestWebhookLateExpiredIgnored(t *testing.T) {
	env := newWebhookEnv(t)
	o := env.seedOrder(t)

	rec, c := env.post(t, vippsPayload(o.OrderNumber, "AUTHORIZED", "tx1"))
	require.NoError(t, env.H.HandleVippsWebhook(c))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, c = env.post(t, vippsPayload(o.OrderNumber, "EXPIRED", "tx1"))
	require.NoError(t, env.H.HandleVippsWebhook(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.Order
	require.NoError(t, env.DB.First(&stored, o.ID).Error)
	require.Equal(t, status.PaymentCompleted, stored.PaymentStatus)
}

func TestWebhookUnknownOrder(t *testing.T) {
	env := newWebhookEnv(t)

	rec, c := env.post(t, vippsPayload("HS-20250101-NOPE0000", "AUTHORIZED", "tx1"))
	require.NoError(t, env.H.HandleVippsWebhook(c))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
}

func TestWebhookInvalidPayload(t *testing.T) {
	env := newWebhookEnv(t)

	_, c := env.post(t, map[string]any{"orderId": ""})
	err := env.H.HandleVippsWebhook(c)
	require.Error(t, err)

	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)
}
