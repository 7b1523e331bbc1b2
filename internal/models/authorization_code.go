package models

import "time"

// AuthorizationCode is a one-time code issued by the authorize endpoint and
// redeemed by the authorization_code grant. Only the SHA-256 hash of the code
// is stored; the plaintext exists solely in the redirect to the client.
type AuthorizationCode struct {
	ID                  int64  `gorm:"primaryKey;autoIncrement"`
	CodeHash            string `gorm:"uniqueIndex;not null"`
	ClientID            string `gorm:"not null;index"`
	RedirectURI         string `gorm:"not null"`
	Scopes              string `gorm:"not null"` // space-separated scopes
	CodeChallenge       string // PKCE challenge, empty when PKCE not used
	CodeChallengeMethod string // "S256" or "plain"
	CreatedAt           time.Time
	ExpiresAt           time.Time
	UsedAt              *time.Time `gorm:"index"`
}

func (c *AuthorizationCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// IsUsed reports whether the code has already been redeemed.
func (c *AuthorizationCode) IsUsed() bool {
	return c.UsedAt != nil
}

// HasPKCE reports whether the authorization request carried a PKCE challenge.
func (c *AuthorizationCode) HasPKCE() bool {
	return c.CodeChallenge != ""
}
