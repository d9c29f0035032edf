package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mandymgr/helseriet-backend/internal/logging"
	"github.com/mandymgr/helseriet-backend/internal/service/order"
	"github.com/mandymgr/helseriet-backend/internal/vipps"
)

// WebhookHandler receives payment notifications from Vipps. Delivery is
// at-least-once and possibly reordered; reconciliation absorbs both, so
// the handler acknowledges everything it can and never propagates
// "already consistent" as a failure the provider would retry forever.
type WebhookHandler struct {
	Svc *order.Service
}

type webhookPayload struct {
	OrderID         string `json:"orderId"`
	TransactionInfo struct {
		Status        string         `json:"status"`
		TransactionID string         `json:"transactionId"`
		Amount        float64        `json:"amount"`
		TimeStamp     string         `json:"timeStamp"`
		Metadata      map[string]any `json:"metadata"`
	} `json:"transactionInfo"`
}

func (h *WebhookHandler) HandleVippsWebhook(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if payload.OrderID == "" || payload.TransactionInfo.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "orderId and transactionInfo.status required")
	}

	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("order_number", payload.OrderID)

	info := vipps.TransactionInfo{
		Status:        vipps.ParseTransactionStatus(payload.TransactionInfo.Status),
		RawStatus:     payload.TransactionInfo.Status,
		TransactionID: payload.TransactionInfo.TransactionID,
		Amount:        payload.TransactionInfo.Amount,
		TimeStamp:     payload.TransactionInfo.TimeStamp,
		Metadata:      payload.TransactionInfo.Metadata,
	}

	outcome, err := h.Svc.ReconcileTransaction(ctx, payload.OrderID, info)
	if err != nil {
		l.Error("webhook reconciliation failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "reconciliation failed")
	}

	if outcome == order.ReconcileOrderNotFound || outcome == order.ReconcilePaymentNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{
			"success": false,
			"message": "order or payment not found",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
