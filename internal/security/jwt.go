package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// OwnerClaims defines JWT claims for tenant-scoped API access.
type OwnerClaims struct {
	OwnerID uint64 `json:"owner_id"`
	Tier    string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs an owner JWT with the configured expiry.
func GenerateToken(secret string, ownerID uint64, tier string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := OwnerClaims{
		OwnerID: ownerID,
		Tier:    tier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates an owner JWT and returns its claims.
func ParseToken(secret string, tokenString string) (*OwnerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OwnerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*OwnerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.OwnerID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
