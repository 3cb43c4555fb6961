package keyexchange

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpirationLayout is the layout of grant expiration dates.
const ExpirationLayout = "2006-01-02"

// GrantClaims are the claims of a request token.
type GrantClaims struct {
	GrantToken     string `json:"grant_token"`
	ExpirationDate string `json:"expiration_date"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for a grant. exp is the grant expiration date
// at 00:00 UTC. A malformed date is an error, raised before any network I/O.
func NewToken(secret, grantToken, expirationDate string, now time.Time) (string, error) {
	exp, err := time.ParseInLocation(ExpirationLayout, expirationDate, time.UTC)
	if err != nil {
		return "", fmt.Errorf("grant expiration date %q: %w", expirationDate, err)
	}

	claims := GrantClaims{
		GrantToken:     grantToken,
		ExpirationDate: expirationDate,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret, tokenString string) (*GrantClaims, error) {
	claims := &GrantClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
