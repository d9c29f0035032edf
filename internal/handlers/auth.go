package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/hash"
	"github.com/mandymgr/helseriet-backend/internal/models"
	"github.com/mandymgr/helseriet-backend/internal/mykafka"
	"github.com/mandymgr/helseriet-backend/internal/service/token"
)

type AuthHandler struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	Producer      *mykafka.Producer
}

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password required")
	}

	var existing models.User
	if err := h.DB.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         "user",
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	publishEvent(c, h.Producer, "user_events", fmt.Sprint(user.ID), map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessToken, err := token.SignAccessToken(user.ID, user.Role, h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create access token")
	}
	refreshToken, err := token.SignRefreshToken(user.ID, user.Role, h.RefreshSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create refresh token")
	}
	if err := token.SaveRefreshToken(h.DB, refreshToken, user.ID, user.Role); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.SetCookie(CreateCookie("accessToken", accessToken, "/", time.Now().Add(token.AccessTokenTTL)))
	c.SetCookie(CreateCookie("refreshToken", refreshToken, "/", time.Now().Add(token.RefreshTokenTTL)))

	publishEvent(c, h.Producer, "user_events", fmt.Sprint(user.ID), map[string]any{
		"type":     "user_logged_in",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"is_admin":      user.Role == "admin",
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	refreshCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token missing")
	}

	if err := h.DB.Model(&models.RefreshToken{}).
		Where("token = ?", refreshCookie.Value).
		Update("revoked", true).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	expired := time.Now().Add(-1 * time.Hour)
	c.SetCookie(CreateCookie("accessToken", "", "/", expired))
	c.SetCookie(CreateCookie("refreshToken", "", "/", expired))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
