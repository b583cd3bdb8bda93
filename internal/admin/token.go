package admin

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/bubblefield/backend/internal/config"
)

const tokenIssuer = "bubblefield"

var ErrInvalidToken = errors.New("invalid admin token")

// Claims carried by an admin token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for username valid for AdminTokenTTLMinutes.
func IssueToken(cfg *config.Config, username string) (string, time.Time, error) {
	if cfg.JWTSecret == "" {
		return "", time.Time{}, fmt.Errorf("JWT secret is not configured")
	}
	ttl := time.Duration(cfg.AdminTokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	expires := now.Add(ttl)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken verifies signature, algorithm, issuer and expiry.
func ParseToken(cfg *config.Config, tokenString string) (*Claims, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(tokenIssuer, true) || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
