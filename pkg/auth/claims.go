package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role accepted on the admin surface.
const RoleAdmin = "admin"

// AdminTokenPayload captures the data available when minting an operator token.
type AdminTokenPayload struct {
	Subject string
	Role    string
	JTI     string
}

// AdminClaims represents the typed JWT presented to admin endpoints.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants the admin role.
func (c *AdminClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
