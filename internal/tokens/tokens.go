// Package tokens signs the short-lived flash-message cookie carried across
// the post/redirect/get cycle.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Flash categories rendered by the templates.
const (
	CategorySuccess = "success"
	CategoryWarning = "warning"
	CategoryError   = "error"
)

// Flash is one user-facing message.
type Flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

type flashClaims struct {
	Flashes []Flash `json:"f"`
	jwt.RegisteredClaims
}

// ErrInvalidToken wraps every parse or verification failure.
var ErrInvalidToken = errors.New("invalid flash token")

// SignFlashes creates a signed HS256 token holding flashes.
func SignFlashes(secret []byte, flashes []Flash, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := flashClaims{
		Flashes: flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(secret)
}

// ParseFlashes verifies token and returns its flashes. Only HS256 is accepted.
func ParseFlashes(secret []byte, token string) ([]Flash, error) {
	var claims flashClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Flashes, nil
}
