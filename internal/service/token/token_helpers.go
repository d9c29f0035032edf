package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

func ValidateRefresh(rawToken string, refreshSecret []byte, db *gorm.DB) (jwt.MapClaims, error) {
	t, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return refreshSecret, nil
	})
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("cannot parse claims")
	}
	if typ, ok := claims["typ"]; !ok || typ != "refresh" {
		return nil, fmt.Errorf("not a refresh token")
	}

	var stored models.RefreshToken
	if err := db.Where("token = ?", rawToken).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("refresh token not found")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if stored.Revoked {
		return nil, fmt.Errorf("refresh token revoked")
	}
	if time.Now().Unix() > stored.ExpiresAt {
		return nil, fmt.Errorf("refresh token expired")
	}

	return claims, nil
}

func SignAccessToken(userID uint, role string, accessSecret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(AccessTokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(accessSecret)
}

func SignRefreshToken(userID uint, role string, refreshSecret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(RefreshTokenTTL).Unix(),
		"typ":  "refresh",
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(refreshSecret)
}

func SaveRefreshToken(db *gorm.DB, token string, userID uint, role string) error {
	stored := models.RefreshToken{
		Token:     token,
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(RefreshTokenTTL).Unix(),
		Revoked:   false,
	}
	if err := db.Create(&stored).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
