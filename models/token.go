package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims - represents JWT token claims. It extends jwt.RegisteredClaims struct
// Fingerprint is a bcrypt hash of the raw value stored in the fingerprint cookie
type TokenClaims struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	Role        UserRole `json:"role"`
	Fingerprint string   `json:"fingerprint"`
	jwt.RegisteredClaims
}
