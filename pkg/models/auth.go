package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims are the claims expected on bearer tokens issued by the external auth service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	TeamID string   `json:"team_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role.
func (c *JWTClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
