package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mandymgr/helseriet-backend/internal/mykafka"
	"github.com/mandymgr/helseriet-backend/internal/service/cart"
)

type CartHandler struct {
	Svc      *cart.Service
	Producer *mykafka.Producer
}

func (h *CartHandler) cartError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, cart.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	items, err := h.Svc.GetCart(c.Request().Context(), uid)
	if err != nil {
		return h.cartError(c, err)
	}

	publishEvent(c, h.Producer, "cart_events", fmt.Sprint(uid), map[string]any{
		"type":   "get_cart",
		"userID": uid,
	})
	return c.JSON(http.StatusOK, items)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	item, err := h.Svc.AddItem(c.Request().Context(), uid, req.ProductID, req.Quantity)
	if err != nil {
		return h.cartError(c, err)
	}

	publishEvent(c, h.Producer, "cart_events", fmt.Sprint(uid), map[string]any{
		"type":      "add_cart_items",
		"userID":    uid,
		"productID": item.ProductID,
		"quantity":  item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) DeleteOneFromCart(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	item, err := h.Svc.RemoveOne(c.Request().Context(), uid, uint(id))
	if err != nil {
		return h.cartError(c, err)
	}

	publishEvent(c, h.Producer, "cart_events", fmt.Sprint(uid), map[string]any{
		"type":         "one_elem_deleted",
		"userID":       uid,
		"id":           item.ID,
		"new_quantity": item.Quantity,
	})
	if item.Quantity == 0 {
		return c.JSON(http.StatusOK, map[string]any{"deleted_item": id})
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) DeleteAllFromCart(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.Svc.RemoveItem(c.Request().Context(), uid, uint(id)); err != nil {
		return h.cartError(c, err)
	}

	remaining, err := h.Svc.GetCart(c.Request().Context(), uid)
	if err != nil {
		return h.cartError(c, err)
	}

	publishEvent(c, h.Producer, "cart_events", fmt.Sprint(uid), map[string]any{
		"type":         "cart_item_deleted",
		"userID":       uid,
		"deleted_item": id,
		"remaining":    remaining,
	})
	return c.JSON(http.StatusOK, remaining)
}
