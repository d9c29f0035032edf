package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
)

type TokenService struct {
	DB            *gorm.DB
	RefreshSecret []byte
	JWTSecret     []byte
}

func (t *TokenService) RotateToken(rawToken string) (string, string, error) {
	claims, err := ValidateRefresh(rawToken, t.RefreshSecret, t.DB)
	if err != nil {
		return "", "", err
	}

	sub, ok := claims["sub"].(float64)
	if !ok {
		return "", "", fmt.Errorf("invalid subject claim")
	}
	userID := uint(sub)
	role, _ := claims["role"].(string)

	newAccess, err := SignAccessToken(userID, role, t.JWTSecret)
	if err != nil {
		return "", "", err
	}
	newRefresh, err := SignRefreshToken(userID, role, t.RefreshSecret)
	if err != nil {
		return "", "", err
	}

	if err := t.RevokeRefresh(rawToken); err != nil {
		return "", "", err
	}
	if err := SaveRefreshToken(t.DB, newRefresh, userID, role); err != nil {
		return "", "", err
	}
	return newAccess, newRefresh, nil
}

func (t *TokenService) RevokeRefresh(token string) error {
	if err := t.DB.Model(&models.RefreshToken{}).
		Where("token = ?", token).
		Update("revoked", true).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AutoRefreshMiddleware authenticates from the access cookie and
// silently rotates via the refresh cookie when the access token is
// expired.
func (t *TokenService) AutoRefreshMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		asCookie, err := c.Cookie("accessToken")
		if err == nil {
			token, err := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
				if _, ok := j.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", j.Header["alg"])
				}
				return t.JWTSecret, nil
			})
			if err == nil && token.Valid {
				setUserContext(c, token.Claims.(jwt.MapClaims))
				return next(c)
			}
			if !errors.Is(err, jwt.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
		}

		rfCookie, err := c.Cookie("refreshToken")
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}
		newAccess, newRefresh, err := t.RotateToken(rfCookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
		}

		c.SetCookie(newCookie("accessToken", newAccess, time.Now().Add(AccessTokenTTL)))
		c.SetCookie(newCookie("refreshToken", newRefresh, time.Now().Add(RefreshTokenTTL)))

		parsed, err := jwt.Parse(newAccess, func(j *jwt.Token) (interface{}, error) {
			return t.JWTSecret, nil
		})
		if err != nil || !parsed.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		setUserContext(c, parsed.Claims.(jwt.MapClaims))
		return next(c)
	}
}

// AutoRefreshMiddlewareAdmin additionally requires the admin role.
func (t *TokenService) AutoRefreshMiddlewareAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return t.AutoRefreshMiddleware(func(c echo.Context) error {
		role, _ := c.Get("role").(string)
		if role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin only")
		}
		return next(c)
	})
}

func setUserContext(c echo.Context, claims jwt.MapClaims) {
	if sub, ok := claims["sub"].(float64); ok {
		c.Set("user_id", uint(sub))
	}
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

func newCookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
