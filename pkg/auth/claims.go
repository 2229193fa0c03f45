package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the token bearer holds a back-office role.
func (c *AccessTokenClaims) IsStaff() bool {
	return c != nil && c.Role.IsStaff()
}

// IsOwner reports whether the token bearer is the site owner.
func (c *AccessTokenClaims) IsOwner() bool {
	return c != nil && c.Role == enums.UserRoleOwner
}
