package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("jwtutil: invalid token")
	ErrExpiredToken = errors.New("jwtutil: token expired")
)

// Claims carries the subject identity encoded into both token types.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Config holds the signing material and lifetimes for the issuer.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer signs and verifies access and refresh tokens against independent
// secrets, so a leaked token of one type can never mint the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(cfg *Config) *Issuer {
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// GenerateAccessToken creates a short-lived bearer token for API calls.
func (i *Issuer) GenerateAccessToken(userID, tenantID string) (string, error) {
	return generate(userID, tenantID, i.accessSecret, i.accessTTL)
}

// GenerateRefreshToken creates the long-lived token delivered via cookie.
func (i *Issuer) GenerateRefreshToken(userID, tenantID string) (string, error) {
	return generate(userID, tenantID, i.refreshSecret, i.refreshTTL)
}

// RefreshTTL exposes the refresh lifetime for the cookie Max-Age.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// VerifyAccessToken validates an access token and returns its claims.
func (i *Issuer) VerifyAccessToken(token string) (*Claims, error) {
	return verify(token, i.accessSecret)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
func (i *Issuer) VerifyRefreshToken(token string) (*Claims, error) {
	return verify(token, i.refreshSecret)
}

func generate(userID, tenantID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
