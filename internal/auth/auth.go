// Package auth issues and validates the bearer tokens contexts present
// when attaching to the background over WebSocket.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned for any invalid, expired, or malformed token.
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the JWT claims carried by a context token.
type Claims struct {
	// Context names the connecting context ("content", "popup", "webview").
	Context string `json:"ctx"`
	jwt.RegisteredClaims
}

// Service signs and validates HS256 context tokens with a shared secret.
type Service struct {
	secret []byte
	expiry time.Duration
}

// New creates a token service. A zero expiry defaults to 24h.
func New(secret string, expiry time.Duration) *Service {
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), expiry: expiry}
}

// IssueToken signs a token for the named context.
func (s *Service) IssueToken(context string) (string, error) {
	claims := &Claims{
		Context: context,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses a bearer token and returns its claims.
func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
