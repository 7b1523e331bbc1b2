package models

import "time"

// Grant type constants, shared by token records and JWT claims.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// Token status constants
const (
	TokenStatusActive  = "active"
	TokenStatusRevoked = "revoked"
)

// AccessToken is the stored record of an issued token.
//
// Opaque tokens (authorization_code / refresh_token grants) are keyed by the
// SHA-256 hash of the raw token, with the paired refresh token hash alongside.
// JWT tokens (client_credentials grant) are additionally keyed by their jti
// claim so introspection can check revocation independent of the signature.
type AccessToken struct {
	ID               string `gorm:"primaryKey"`
	TokenHash        string `gorm:"uniqueIndex;not null"`
	RefreshTokenHash string `gorm:"index"` // Empty for client_credentials tokens
	JTI              string `gorm:"index"` // Empty for opaque tokens
	ClientID         string `gorm:"not null;index"`
	Scopes           string `gorm:"not null"` // space-separated scopes
	GrantType        string `gorm:"not null"`
	Status           string `gorm:"not null;default:'active';index"`
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsActive returns true if the token has not been revoked and has not expired.
func (t *AccessToken) IsActive() bool {
	return t.Status == TokenStatusActive && !t.IsExpired()
}

// IsRevoked returns true if token status is 'revoked'
func (t *AccessToken) IsRevoked() bool {
	return t.Status == TokenStatusRevoked
}
