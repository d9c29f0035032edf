package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mandymgr/helseriet-backend/internal/logging"
	"github.com/mandymgr/helseriet-backend/internal/service/order"
	"github.com/mandymgr/helseriet-backend/internal/util"
)

type OrderHandler struct {
	Svc *order.Service
}

func orderError(err error) error {
	switch {
	case errors.Is(err, order.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrProvider):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func orderIDParam(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	var req order.CreateOrderInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	created, err := h.Svc.CreateOrder(c.Request().Context(), uid, req)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	cancelled, err := h.Svc.CancelOrder(c.Request().Context(), uid, id)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, cancelled)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	found, err := h.Svc.GetOrder(c.Request().Context(), uid, id)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, found)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	orders, err := h.Svc.ListOrders(c.Request().Context(), uid, limit, offset)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

// GetPaymentStatus polls the provider without touching stored state.
func (h *OrderHandler) GetPaymentStatus(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	// Ownership check runs through the normal read path.
	if _, err := h.Svc.GetOrder(c.Request().Context(), uid, id); err != nil {
		return orderError(err)
	}

	info, standard, err := h.Svc.GetPaymentStatus(c.Request().Context(), id)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"payment_status":   standard,
		"transaction_info": info,
	})
}

// Admin-only routes below.

func (h *OrderHandler) UpdateOrderStatus(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	var upd order.StatusUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if upd.Status == nil && upd.PaymentStatus == nil && upd.FulfillmentStatus == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	updated, err := h.Svc.UpdateOrderStatus(c.Request().Context(), id, upd)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *OrderHandler) CapturePayment(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	var req struct {
		Amount      float64 `json:"amount"`
		Description string  `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.CapturePayment(c.Request().Context(), id, req.Amount, req.Description)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *OrderHandler) CancelPayment(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.CancelPayment(c.Request().Context(), id, req.Description)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// RefreshPaymentStatus re-polls the provider and routes the answer
// through reconciliation. Recovery path for missed webhooks.
func (h *OrderHandler) RefreshPaymentStatus(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}

	outcome, err := h.Svc.RefreshPaymentStatus(c.Request().Context(), id)
	if err != nil {
		return orderError(err)
	}

	logging.FromContext(c.Request().Context()).Info("payment status refreshed",
		"order_id", id, "outcome", int(outcome))
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
