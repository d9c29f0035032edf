package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mandymgr/helseriet-backend/internal/mykafka"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorResponse(c echo.Context, code int, err error) error {
	return c.JSON(code, Response{
		Status:  "error",
		Message: err.Error(),
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// userID reads the identity placed on the context by the auth
// middleware.
func userID(c echo.Context) (uint, error) {
	id, ok := c.Get("user_id").(uint)
	if !ok || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}

func publishEvent(c echo.Context, p *mykafka.Producer, topic, key string, event map[string]any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := p.PublishEvent(ctx, topic, key, event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}
