package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/mykafka"
	"github.com/mandymgr/helseriet-backend/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

type productRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       uint    `json:"count"`
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Product{}).Count(&total).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	var items []models.Product
	if err := h.DB.Model(&models.Product{}).
		Order("id ASC").Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	prod := models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Count:       req.Count,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	publishEvent(c, h.Producer, "product_events", fmt.Sprint(prod.ID), map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, err)
	}

	prod.Name = req.Name
	prod.Description = req.Description
	prod.Price = req.Price
	prod.Count = req.Count

	if err := h.DB.Save(&prod).Error; err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	publishEvent(c, h.Producer, "product_events", fmt.Sprint(prod.ID), map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	publishEvent(c, h.Producer, "product_events", fmt.Sprint(id), map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
