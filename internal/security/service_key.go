package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ServiceKeyPrefix marks bearer tokens that are service keys rather than JWTs.
const ServiceKeyPrefix = "pmk_"

// bcryptCost defines the bcrypt work factor for stored key hashes.
const bcryptCost = 12

// GenerateServiceKey creates a new random service key string.
func GenerateServiceKey() (token string, err error) {
	secret := make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate service key: %w", err)
	}
	return ServiceKeyPrefix + hex.EncodeToString(secret), nil
}

// IsServiceKey reports whether a bearer token looks like a service key.
func IsServiceKey(token string) bool {
	return strings.HasPrefix(token, ServiceKeyPrefix)
}

// HashServiceKey hashes a plaintext service key using bcrypt.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckServiceKey compares a bcrypt hash with a plaintext service key.
func CheckServiceKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
