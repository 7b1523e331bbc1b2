package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Client is a registered OAuth2 client. Clients are seeded from configuration
// at process startup and are immutable afterwards.
type Client struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"`
	ClientID     string      `gorm:"uniqueIndex;not null"`
	ClientSecret string      `gorm:"not null"` // bcrypt hashed secret
	RedirectURIs StringArray `gorm:"type:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SetClientSecret hashes the plaintext secret and stores the hash.
func (c *Client) SetClientSecret(secret string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.ClientSecret = string(hashed)
	return nil
}

// ValidateClientSecret validates the given secret against the stored hash.
// bcrypt comparison is constant-time with respect to the secret.
func (c *Client) ValidateClientSecret(secret []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), secret) == nil
}

// AllowsRedirectURI reports whether uri matches one of the registered
// redirect URIs. The "*" wildcard accepts any URI (testing only).
func (c *Client) AllowsRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == "*" || registered == uri {
			return true
		}
	}
	return false
}

// StringArray is a custom type for []string that can be stored as JSON in database
type StringArray []string

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSON value")
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}
